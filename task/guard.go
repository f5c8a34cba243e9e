package task

// Env describes one invocation: the task it addresses, the identity the host
// authenticated, and the host clock in unix seconds.
type Env struct {
	TaskID string
	Signer Identity
	Now    int64
}

// Guard is a precondition over the signer and the current record. A failing
// guard aborts the operation before anything is written.
type Guard func(env Env, rec *Record) error

// StatusIs admits only records currently in want.
func StatusIs(want Status) Guard {
	return func(_ Env, rec *Record) error {
		switch rec.Status {
		case StatusCreated, StatusAccepted, StatusCompleted:
			if rec.Status != want {
				return ErrInvalidTaskStatus
			}
			return nil
		default:
			return ErrInvalidTaskStatus
		}
	}
}

// SignerIsOperator admits only the identity that accepted the task.
func SignerIsOperator(env Env, rec *Record) error {
	if env.Signer != rec.Operator {
		return ErrUnauthorizedOperator
	}
	return nil
}

// SignerIsValidator admits only the validator named at creation.
func SignerIsValidator(env Env, rec *Record) error {
	if env.Signer != rec.Validator {
		return ErrUnauthorizedValidator
	}
	return nil
}

// NotVerified admits records whose verification flag is still unset.
func NotVerified(_ Env, rec *Record) error {
	if rec.VerificationResult {
		return ErrAlreadyVerified
	}
	return nil
}

// Guard chains, evaluated in order; the first failure wins.
var (
	AcceptGuards       = []Guard{StatusIs(StatusCreated)}
	CompleteGuards     = []Guard{StatusIs(StatusAccepted), SignerIsOperator}
	VerificationGuards = []Guard{SignerIsValidator, NotVerified}
)

func check(env Env, rec *Record, guards []Guard) error {
	for _, g := range guards {
		if err := g(env, rec); err != nil {
			return err
		}
	}
	return nil
}
