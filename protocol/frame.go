// Package protocol implements the JSONL control protocol spoken between the
// session kernel and an interpreter subprocess: one UTF-8 JSON object per
// line, discriminated by a "type" field.
package protocol

import "encoding/json"

// FrameType discriminates between frame kinds.
type FrameType string

// Host -> interpreter frame types.
const (
	FrameTypeInit       FrameType = "init"
	FrameTypeExec       FrameType = "exec"
	FrameTypeToolResult FrameType = "tool_result"
	FrameTypeSnapshot   FrameType = "snapshot"
	FrameTypeRestore    FrameType = "restore"
	FrameTypeShutdown   FrameType = "shutdown"
)

// Interpreter -> host frame types.
const (
	FrameTypeReady          FrameType = "ready"
	FrameTypeToolCall       FrameType = "tool_call"
	FrameTypeMessage        FrameType = "message"
	FrameTypeExecResult     FrameType = "exec_result"
	FrameTypeSnapshotResult FrameType = "snapshot_result"
)

// Frame is the interface every wire frame implements.
type Frame interface {
	FrameType() FrameType
}

// InitFrame carries the serialized tool catalog, sent exactly once after spawn.
type InitFrame struct {
	Type  FrameType `json:"type"`
	Tools string    `json:"tools"`
}

// FrameType returns the frame's discriminator.
func (f InitFrame) FrameType() FrameType { return FrameTypeInit }

// NewInitFrame builds an init frame from an already-serialized tool catalog.
func NewInitFrame(tools string) InitFrame {
	return InitFrame{Type: FrameTypeInit, Tools: tools}
}

// ExecFrame requests execution of a code block.
type ExecFrame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
	Code string    `json:"code"`
}

// FrameType returns the frame's discriminator.
func (f ExecFrame) FrameType() FrameType { return FrameTypeExec }

// NewExecFrame builds an exec request frame.
func NewExecFrame(id, code string) ExecFrame {
	return ExecFrame{Type: FrameTypeExec, ID: id, Code: code}
}

// ToolResultFrame answers a tool_call with the host's tool execution result.
type ToolResultFrame struct {
	Type    FrameType `json:"type"`
	ID      string    `json:"id"`
	Result  string    `json:"result"`
	Success bool      `json:"success"`
}

// FrameType returns the frame's discriminator.
func (f ToolResultFrame) FrameType() FrameType { return FrameTypeToolResult }

// NewToolResultFrame builds a tool_result frame.
func NewToolResultFrame(id string, success bool, result string) ToolResultFrame {
	return ToolResultFrame{Type: FrameTypeToolResult, ID: id, Success: success, Result: result}
}

// SnapshotFrame requests namespace serialization.
type SnapshotFrame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
}

// FrameType returns the frame's discriminator.
func (f SnapshotFrame) FrameType() FrameType { return FrameTypeSnapshot }

// NewSnapshotFrame builds a snapshot request frame.
func NewSnapshotFrame(id string) SnapshotFrame {
	return SnapshotFrame{Type: FrameTypeSnapshot, ID: id}
}

// RestoreFrame requests restoring a namespace from a prior snapshot blob.
type RestoreFrame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
	Data string    `json:"data"`
}

// FrameType returns the frame's discriminator.
func (f RestoreFrame) FrameType() FrameType { return FrameTypeRestore }

// NewRestoreFrame builds a restore request frame.
func NewRestoreFrame(id, data string) RestoreFrame {
	return RestoreFrame{Type: FrameTypeRestore, ID: id, Data: data}
}

// ShutdownFrame requests clean interpreter exit. It carries no fields.
type ShutdownFrame struct {
	Type FrameType `json:"type"`
}

// FrameType returns the frame's discriminator.
func (f ShutdownFrame) FrameType() FrameType { return FrameTypeShutdown }

// NewShutdownFrame builds a shutdown request frame.
func NewShutdownFrame() ShutdownFrame {
	return ShutdownFrame{Type: FrameTypeShutdown}
}

// ReadyFrame signals the init handshake is complete. It carries no fields.
type ReadyFrame struct {
	Type FrameType `json:"type"`
}

// FrameType returns the frame's discriminator.
func (f ReadyFrame) FrameType() FrameType { return FrameTypeReady }

// ToolCallFrame is a re-entrant request from the interpreter to the host.
type ToolCallFrame struct {
	Type FrameType `json:"type"`
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Args string    `json:"args"`
}

// FrameType returns the frame's discriminator.
func (f ToolCallFrame) FrameType() FrameType { return FrameTypeToolCall }

// MessageFrame is an intermediate, user-facing message emitted during an exec.
type MessageFrame struct {
	Type FrameType `json:"type"`
	Text string    `json:"text"`
	Kind string    `json:"kind"`
}

// FrameType returns the frame's discriminator.
func (f MessageFrame) FrameType() FrameType { return FrameTypeMessage }

// ExecResultFrame is the terminal frame for an exec request.
type ExecResultFrame struct {
	Error    *string   `json:"error,omitempty"`
	Type     FrameType `json:"type"`
	ID       string    `json:"id"`
	Output   string    `json:"output"`
	Response string    `json:"response"`
}

// FrameType returns the frame's discriminator.
func (f ExecResultFrame) FrameType() FrameType { return FrameTypeExecResult }

// SnapshotResultFrame is the terminal frame for a snapshot request. Error is
// set when the interpreter cannot serialize its namespace; Data is then
// meaningless and should be ignored.
type SnapshotResultFrame struct {
	Type  FrameType `json:"type"`
	ID    string    `json:"id"`
	Data  string    `json:"data"`
	Error *string   `json:"error,omitempty"`
}

// FrameType returns the frame's discriminator.
func (f SnapshotResultFrame) FrameType() FrameType { return FrameTypeSnapshotResult }

// rawFrame is used for initial type discrimination before dispatching to a
// concrete frame type.
type rawFrame struct {
	Type FrameType `json:"type"`
}

// ParseFrame parses a single decoded JSON line into a typed Frame.
//
// Unknown frame types return (nil, nil): the caller is expected to log and
// ignore them, the same forward-compatibility rule the wire protocol
// specifies for any post-handshake frame with an unrecognized discriminator.
func ParseFrame(line []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}

	switch raw.Type {
	case FrameTypeReady:
		var f ReadyFrame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTypeToolCall:
		var f ToolCallFrame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTypeMessage:
		var f MessageFrame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTypeExecResult:
		var f ExecResultFrame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, err
		}
		return f, nil
	case FrameTypeSnapshotResult:
		var f SnapshotResultFrame
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, nil
	}
}
