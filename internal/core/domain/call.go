package domain

type LifecycleState string

const (
	StateInitialized LifecycleState = "initialized"
	StateJoining     LifecycleState = "joining"
	StateActive      LifecycleState = "active"
	StateEnded       LifecycleState = "ended"
)

func (s LifecycleState) String() string {
	return string(s)
}

// Live reports whether the state holds an engine-side call (in flight or joined).
func (s LifecycleState) Live() bool {
	return s == StateJoining || s == StateActive
}

type UserIdentity struct {
	ID       string
	Name     string
	ImageURL string
}

// InitRequest carries the arguments of initializeVideoCall.
type InitRequest struct {
	APIKey             string
	Token              string
	PreferredExtension string
	User               UserIdentity
}

// Validate returns a ValidationError naming the first missing required field.
func (r InitRequest) Validate() error {
	switch {
	case r.APIKey == "":
		return &ValidationError{Field: "apiKey"}
	case r.Token == "":
		return &ValidationError{Field: "token"}
	case r.User.ID == "":
		return &ValidationError{Field: "user.id"}
	case r.User.Name == "":
		return &ValidationError{Field: "user.name"}
	}
	return nil
}

type CallSession struct {
	Handle             SessionHandle
	APIKey             string
	Token              string
	User               UserIdentity
	CallID             string
	PreferredExtension string
	State              LifecycleState
	Generation         uint64
}

func NewCallSession(req InitRequest) *CallSession {
	return &CallSession{
		Handle:             NewSessionHandle(),
		APIKey:             req.APIKey,
		Token:              req.Token,
		User:               req.User,
		PreferredExtension: req.PreferredExtension,
		State:              StateInitialized,
	}
}

func (s *CallSession) Credentials() Credentials {
	return Credentials{
		APIKey:  s.APIKey,
		Token:   s.Token,
		User:    s.User,
		CallID:  s.CallID,
		Attempt: s.Generation,
	}
}

// Credentials is what the engine needs to join a call.
type Credentials struct {
	APIKey string
	Token  string
	User   UserIdentity
	CallID string

	// Attempt identifies one join of CallID. Engines report it back when they end the call.
	Attempt uint64
}
