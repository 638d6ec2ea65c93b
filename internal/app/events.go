package app

import (
	"gopherai-search/internal/model"
	"gopherai-search/internal/pipeline"
)

// Stage is the position of a turn in its state machine.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageClassifying Stage = "classifying"
	StageRetrieving  Stage = "retrieving"
	StageAssembling  Stage = "assembling"
	StageStreaming   Stage = "streaming"
	StageImage       Stage = "image"
	StageCodeExec    Stage = "code_exec"
	StageAudio       Stage = "audio"
	StagePersisted   Stage = "persisted"
)

type EventType string

const (
	EventStage     EventType = "stage"
	EventIntent    EventType = "intent"
	EventEvidence  EventType = "evidence"
	EventFragment  EventType = "fragment"
	EventImage     EventType = "image"
	EventChart     EventType = "chart"
	EventCodeError EventType = "code_error"
	EventAudio     EventType = "audio"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one item of the turn stream relayed to the client.
type Event struct {
	Type EventType
	Data any
}

type StagePayload struct {
	Stage   Stage           `json:"stage"`
	Source  pipeline.Source `json:"source,omitempty"`
	Status  pipeline.Status `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

type EvidencePayload struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Preview string `json:"preview"`
}

type ChartPayload struct {
	Charts []model.Chart `json:"charts"`
	Output string        `json:"output,omitempty"`
}

type DonePayload struct {
	Turn   model.Turn      `json:"turn"`
	Intent pipeline.Intent `json:"intent"`
}

func evidencePayload(evidence []model.Evidence) []EvidencePayload {
	out := make([]EvidencePayload, 0, len(evidence))
	for _, ev := range evidence {
		out = append(out, EvidencePayload{Title: ev.Title, URL: ev.URL, Preview: ev.Preview()})
	}
	return out
}

func retrievalMessage(r pipeline.Retrieval) string {
	switch r.Status {
	case pipeline.StatusFound:
		return "Found relevant information"
	case pipeline.StatusEmpty:
		return "No results found"
	case pipeline.StatusFailed:
		return "Search unavailable, answering without sources"
	}
	switch r.Source {
	case pipeline.SourceDocument:
		return "Using the uploaded document"
	case pipeline.SourceDataset:
		return "Using the loaded dataset"
	}
	return "Answering without web search"
}
