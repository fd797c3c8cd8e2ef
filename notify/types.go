package notify

import (
	"time"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/stage"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is the summary sent at the end of a run.
type Event struct {
	RunID        string         `json:"run_id"`
	Outcome      Outcome        `json:"outcome"`
	Port         int            `json:"port,omitempty"`
	PreviousPort int            `json:"previous_port,omitempty"`
	FinalState   string         `json:"final_state"`
	FailedStage  stage.Name     `json:"failed_stage,omitempty"`
	Error        string         `json:"error,omitempty"`
	Stages       []stage.Result `json:"stages"`
	// Diagnostic is the path of the failure artifact, if one was captured.
	Diagnostic string    `json:"diagnostic,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Discord webhook payload
type discordMessage struct {
	Content  string         `json:"content"`
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Footer    *discordFooter `json:"footer,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}
