package exchange

import (
	"fmt"

	"github.com/google/uuid"
)

// Property keys used by the error-handling pipeline. All other properties are
// opaque pass-through for the stages that set them.
const (
	// PropertyExceptionCaught holds the failure snapshot captured before fault handling.
	PropertyExceptionCaught = "exception.caught"

	// PropertyFailureHandled marks an exchange whose failure was resolved by a policy.
	PropertyFailureHandled = "failure.handled"

	// PropertyRollbackOnly marks an exchange that must roll back its transactional work.
	PropertyRollbackOnly = "rollback.only"

	// PropertyRedeliveryCount tracks how many redelivery attempts have been made.
	PropertyRedeliveryCount = "redelivery.count"
)

// Exchange is the mutable unit-of-work context carried through a pipeline.
type Exchange struct {
	id         string
	routeID    string
	transacted bool
	in         *Message
	out        *Message
	exception  error
	properties map[string]interface{}
}

// Option configures a new exchange
type Option func(*Exchange)

// WithRouteID sets the route the exchange originated from
func WithRouteID(routeID string) Option {
	return func(e *Exchange) {
		e.routeID = routeID
	}
}

// WithTransacted marks the exchange as being under a transactional contract
func WithTransacted(transacted bool) Option {
	return func(e *Exchange) {
		e.transacted = transacted
	}
}

// WithBody sets the body of the in message
func WithBody(body interface{}) Option {
	return func(e *Exchange) {
		e.in.SetBody(body)
	}
}

// New creates a new exchange with a generated ID and an empty in message
func New(opts ...Option) *Exchange {
	e := &Exchange{
		id:         uuid.New().String(),
		in:         NewMessage(),
		properties: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ID returns the stable exchange identifier used for logging and correlation
func (e *Exchange) ID() string {
	return e.id
}

// RouteID returns the route the exchange originated from, or "" when unset
func (e *Exchange) RouteID() string {
	return e.routeID
}

// Transacted reports whether the exchange is under a transactional contract
func (e *Exchange) Transacted() bool {
	return e.transacted
}

// In returns the primary message
func (e *Exchange) In() *Message {
	return e.in
}

// SetIn replaces the primary message
func (e *Exchange) SetIn(msg *Message) {
	e.in = msg
}

// Out returns the out message, creating it on first use
func (e *Exchange) Out() *Message {
	if e.out == nil {
		e.out = NewMessage()
	}
	return e.out
}

// HasOut reports whether an out message has been created
func (e *Exchange) HasOut() bool {
	return e.out != nil
}

// Exception returns the active failure, or nil when the exchange has not failed
func (e *Exchange) Exception() error {
	return e.exception
}

// SetException sets or clears the active failure
func (e *Exchange) SetException(err error) {
	e.exception = err
}

// Property returns the value stored under key, or nil when absent
func (e *Exchange) Property(key string) interface{} {
	return e.properties[key]
}

// SetProperty stores a value under key. A nil value removes the property.
func (e *Exchange) SetProperty(key string, value interface{}) {
	if value == nil {
		delete(e.properties, key)
		return
	}
	e.properties[key] = value
}

// RemoveProperty removes the value stored under key
func (e *Exchange) RemoveProperty(key string) {
	delete(e.properties, key)
}

// Properties returns the live property map. Callers share the exchange's
// single-owner discipline and must not retain the map across stage boundaries.
func (e *Exchange) Properties() map[string]interface{} {
	return e.properties
}

func (e *Exchange) String() string {
	return fmt.Sprintf("Exchange[%s]", e.id)
}
