// Package entity holds the persistent records derived from a document.
// Identifiers are name-based UUIDs (version 5) scoped by the owning record,
// so re-deriving the same document yields the same ids.
package entity

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

type Specification struct {
	ID              uuid.UUID
	ConfigurationID uuid.UUID
	Text            string
	BaseURL         string
}

type Server struct {
	ID     uuid.UUID
	SpecID uuid.UUID
	URL    string
}

type Path struct {
	ID        uuid.UUID
	SpecID    uuid.UUID
	Templated string
	// Position is the index of the path in document order.
	Position int
}

type Operation struct {
	ID              uuid.UUID
	PathID          uuid.UUID
	ServerID        uuid.UUID
	Verb            string
	SelectionPrompt string
	ToolName        string
	ToolCall        json.RawMessage
	Prompts         []SelectionPrompt
}

type SelectionPrompt struct {
	ID          uuid.UUID
	OperationID uuid.UUID
	Position    int
	Text        string
	Embedding   []float32
}

// Noun is a domain entity name taken from a component schema.
type Noun struct {
	ID     uuid.UUID
	SpecID uuid.UUID
	Prompt string
}

func ServerID(specID uuid.UUID, url string) uuid.UUID {
	return uuid.NewSHA1(specID, []byte(url))
}

func PathID(specID uuid.UUID, templated string) uuid.UUID {
	return uuid.NewSHA1(specID, []byte(templated))
}

func OperationID(pathID uuid.UUID, verb string) uuid.UUID {
	return uuid.NewSHA1(pathID, []byte(verb))
}

func PromptID(operationID uuid.UUID, position int, text string) uuid.UUID {
	return uuid.NewSHA1(operationID, []byte(strconv.Itoa(position)+":"+text))
}

func NounID(specID uuid.UUID, prompt string) uuid.UUID {
	return uuid.NewSHA1(specID, []byte("noun:"+prompt))
}

func NewServer(specID uuid.UUID, url string) (Server, error) {
	if specID == uuid.Nil {
		return Server{}, fmt.Errorf("server %s: specification id is required", url)
	}
	return Server{ID: ServerID(specID, url), SpecID: specID, URL: url}, nil
}

func NewPath(specID uuid.UUID, templated string, position int) (Path, error) {
	if specID == uuid.Nil {
		return Path{}, fmt.Errorf("path %s: specification id is required", templated)
	}
	return Path{ID: PathID(specID, templated), SpecID: specID, Templated: templated, Position: position}, nil
}

// NewOperation ties an operation to its path and server; neither may be unset.
func NewOperation(path Path, server Server, verb, selectionPrompt string) (Operation, error) {
	if path.ID == uuid.Nil || server.ID == uuid.Nil {
		return Operation{}, fmt.Errorf("operation %s %s: path and server are required", verb, path.Templated)
	}
	return Operation{
		ID:              OperationID(path.ID, verb),
		PathID:          path.ID,
		ServerID:        server.ID,
		Verb:            verb,
		SelectionPrompt: selectionPrompt,
	}, nil
}

// AddPrompt appends a selection prompt row owned by op.
func (op *Operation) AddPrompt(text string) {
	pos := len(op.Prompts)
	op.Prompts = append(op.Prompts, SelectionPrompt{
		ID:          PromptID(op.ID, pos, text),
		OperationID: op.ID,
		Position:    pos,
		Text:        text,
	})
}

func NewNoun(specID uuid.UUID, prompt string) Noun {
	return Noun{ID: NounID(specID, prompt), SpecID: specID, Prompt: prompt}
}
