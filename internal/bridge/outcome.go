package bridge

import "encoding/json"

// Outcome is the reply to one call: a result, an error, or not implemented.
type Outcome struct {
	Result         any
	Err            *Error
	NotImplemented bool
}

func success(result any) Outcome { return Outcome{Result: result} }

func failure(err *Error) Outcome { return Outcome{Err: err} }

// OK reports whether the call produced a result.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.NotImplemented
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch {
	case o.NotImplemented:
		return json.Marshal(struct {
			NotImplemented bool `json:"notImplemented"`
		}{true})
	case o.Err != nil:
		return json.Marshal(struct {
			Error *Error `json:"error"`
		}{o.Err})
	default:
		return json.Marshal(struct {
			Result any `json:"result"`
		}{o.Result})
	}
}
