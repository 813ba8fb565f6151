package modules

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/models"
	"github.com/segmentio/encoding/json"
)

const (
	// Error type returned by modules that do not handle a given message.
	ErrTypeMsgSkip = "module_msg_skip"

	// Error type returned when a message payload cannot be decoded.
	ErrTypeBadMsg = "module_bad_msg"
)

// Module is the interface that describes a module that extends session
// capabilities.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module for the given session. It is called once when the
	// session is created.
	Init(*models.Session)

	// Handles a given message sent to the module for a session. Modules are
	// free to decide whether they handle a message.
	//
	// Returning an error of type ErrTypeMsgSkip indicates that handling the
	// message was skipped.
	HandleMsg(context.Context, *models.Session, Msg) (any, error)
}

// Msg is a message sent to a module.
type Msg struct {
	// The message type, specific to each module.
	Type string

	// The JSON payload.
	Data []byte
}

// DataTo decodes the message payload into v. An empty payload leaves v
// untouched.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding module message failed").
			WithType(ErrTypeBadMsg).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// SkipMsg returns the error to return when a module does not handle msg.
func SkipMsg(module Module, msg Msg) error {
	return errors.New("module message skipped").
		WithType(ErrTypeMsgSkip).
		WithTag("module", module.Name()).
		WithTag("msg_type", msg.Type)
}

// Find returns the module with the given name.
func Find(modules []Module, name string) (Module, bool) {
	for _, m := range modules {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}
