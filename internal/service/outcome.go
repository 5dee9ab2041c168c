package service

// Kind - исход сценария, по которому граница HTTP выбирает ответ.
type Kind int

const (
	// Success - действие выполнено; Location, если задан, - куда перейти дальше.
	Success Kind = iota
	// NeedsLogin - действие требует входа.
	NeedsLogin
	// Redirect - действие не выполняется, пользователь отправляется на Location.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NeedsLogin:
		return "needs_login"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Outcome[T any] struct {
	Kind     Kind
	Data     T
	Location string
}

func ok[T any](data T) Outcome[T] {
	return Outcome[T]{Kind: Success, Data: data}
}

func okThen[T any](data T, location string) Outcome[T] {
	return Outcome[T]{Kind: Success, Data: data, Location: location}
}

func needsLogin[T any]() Outcome[T] {
	return Outcome[T]{Kind: NeedsLogin}
}

func redirectTo[T any](location string) Outcome[T] {
	return Outcome[T]{Kind: Redirect, Location: location}
}
