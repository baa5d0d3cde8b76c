package model

// AnswerType is the expected shape of a prompt answer.
type AnswerType string

// Answer types.
const (
	AnswerAmount       AnswerType = "amount"
	AnswerSignedAmount AnswerType = "signed_amount"
	AnswerInteger      AnswerType = "integer"
	AnswerPercent      AnswerType = "percent"
	AnswerDate         AnswerType = "date"
	AnswerBool         AnswerType = "bool"
	AnswerIDList       AnswerType = "id_list"
	AnswerChoice       AnswerType = "choice"
	AnswerText         AnswerType = "text"
)

// ParamSpec describes one parameter a handler or linked effect accepts.
type ParamSpec struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Type    AnswerType `json:"type"`
	Choices []string   `json:"choices,omitempty"`
}

// PromptRequest asks the caller for a missing value.
type PromptRequest struct {
	Key        string     `json:"key"`
	Label      string     `json:"label"`
	Type       AnswerType `json:"type"`
	LinkedType LinkedType `json:"linked_type,omitempty"`
	Choices    []string   `json:"choices,omitempty"`
	Optional   bool       `json:"optional"`
}

// Prompt turns a spec into a required prompt.
func (p ParamSpec) Prompt() PromptRequest {
	return PromptRequest{
		Key:     p.Key,
		Label:   p.Label,
		Type:    p.Type,
		Choices: p.Choices,
	}
}
