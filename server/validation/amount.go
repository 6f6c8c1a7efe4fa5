package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Amount is the default_amount field of the flat shape. It accepts a JSON
// string or number and keeps the text exactly as sent, so 1500.50 stays
// "1500.50". Null and numeric zero decode to the empty amount, which the
// required rule then rejects.
type Amount string

// AmountError reports a default_amount that is neither a string nor a number.
type AmountError struct {
	Raw string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("unsupported default_amount value %s", e.Raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return &AmountError{Raw: string(data)}
		}
		if f == 0 {
			*a = ""
			return nil
		}
		*a = Amount(data)
		return nil
	default:
		return &AmountError{Raw: string(data)}
	}
}
