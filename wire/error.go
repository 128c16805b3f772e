package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/wippyai/anki-bridge/errors"
)

// ErrorKind is the field number of a BackendError variant.
type ErrorKind protowire.Number

const (
	ErrorInvalidInput      ErrorKind = 1
	ErrorTemplateParse     ErrorKind = 2
	ErrorIO                ErrorKind = 3
	ErrorDB                ErrorKind = 4
	ErrorNetwork           ErrorKind = 5
	ErrorAnkiWebAuthFailed ErrorKind = 6
	ErrorAnkiWebMisc       ErrorKind = 7
	ErrorInterrupted       ErrorKind = 8
)

var errorKindNames = map[ErrorKind]string{
	ErrorInvalidInput:      "invalid_input",
	ErrorTemplateParse:     "template_parse",
	ErrorIO:                "io_error",
	ErrorDB:                "db_error",
	ErrorNetwork:           "network_error",
	ErrorAnkiWebAuthFailed: "ankiweb_auth_failed",
	ErrorAnkiWebMisc:       "ankiweb_misc_error",
	ErrorInterrupted:       "interrupted",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error(%d)", int32(k))
}

// BackendError is the error union carried by a failed response.
//
// Wire layout (oneof value):
//
//	1: StringError        invalid_input
//	2: TemplateParseError template_parse
//	3: StringError        io_error
//	4: StringError        db_error
//	5: StringError        network_error
//	6: Empty              ankiweb_auth_failed
//	7: StringError        ankiweb_misc_error
//	8: Empty              interrupted
//
// StringError is {1: string info}; TemplateParseError is
// {1: string info, 2: bool q_side}.
//
// Info and QSide are meaningful only for the kinds that carry them.
// A Kind unknown to this version is preserved so the classifier can reject it.
type BackendError struct {
	Info  string
	Kind  ErrorKind
	QSide bool
}

func (m *BackendError) Marshal() ([]byte, error) {
	var body []byte
	switch m.Kind {
	case ErrorInvalidInput, ErrorIO, ErrorDB, ErrorNetwork, ErrorAnkiWebMisc:
		body = appendString(nil, 1, m.Info)
	case ErrorTemplateParse:
		body = appendString(nil, 1, m.Info)
		body = appendBool(body, 2, m.QSide)
	case ErrorAnkiWebAuthFailed, ErrorInterrupted:
	case 0:
		return nil, errors.TagCount(errors.PhaseEncode, "BackendError", 0)
	default:
		return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "BackendError", m.Kind)
	}
	return appendEmbedded(nil, protowire.Number(m.Kind), body), nil
}

// Unmarshal decodes the error union. Unlike the other unions, an unknown
// variant is kept rather than rejected: whether an unknown error kind is
// fatal is the classifier's decision.
func (m *BackendError) Unmarshal(b []byte) error {
	u := unionReader{msg: "BackendError"}
	*m = BackendError{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		body, err := f.asMessage(u.msg)
		if err != nil {
			return err
		}
		m.Kind = ErrorKind(f.num)
		switch m.Kind {
		case ErrorInvalidInput, ErrorIO, ErrorDB, ErrorNetwork, ErrorAnkiWebMisc, ErrorTemplateParse:
			return readFields(u.msg, body, func(inner field) error {
				var err error
				switch inner.num {
				case 1:
					m.Info, err = inner.asString(u.msg)
				case 2:
					if m.Kind == ErrorTemplateParse {
						m.QSide, err = inner.asBool(u.msg)
					}
				}
				return err
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}
