package exchange

// Message carries a payload and its headers through the pipeline.
type Message struct {
	headers map[string]interface{}
	body    interface{}
}

// NewMessage creates an empty message
func NewMessage() *Message {
	return &Message{
		headers: make(map[string]interface{}),
	}
}

// Body returns the message body
func (m *Message) Body() interface{} {
	return m.body
}

// SetBody sets the message body
func (m *Message) SetBody(body interface{}) {
	m.body = body
}

// Header returns the header value stored under key, or nil when absent
func (m *Message) Header(key string) interface{} {
	return m.headers[key]
}

// SetHeader stores a header value under key
func (m *Message) SetHeader(key string, value interface{}) {
	m.headers[key] = value
}

// Headers returns the live header map
func (m *Message) Headers() map[string]interface{} {
	return m.headers
}

// StreamCache is implemented by one-shot streaming bodies that can be rewound
// so a later stage can read them again.
type StreamCache interface {
	// Reset rewinds the stream to its beginning
	Reset() error
}

// ResetStreamCache rewinds the message body if it is a StreamCache.
// Bodies that are not stream caches are left untouched.
func (m *Message) ResetStreamCache() error {
	cache, ok := m.body.(StreamCache)
	if !ok {
		return nil
	}
	return cache.Reset()
}
