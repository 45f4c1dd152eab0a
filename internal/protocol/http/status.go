package http

import "strconv"

// Status is the closed set of response codes the server emits.
type Status int

const (
	StatusOK             Status = 200
	StatusBadRequest     Status = 400
	StatusNotFound       Status = 404
	StatusNotImplemented Status = 501
)

// Reason returns the reason phrase written after the code on the status line.
//
// The 501 phrase is completed with the offending method by the handler.
func (s Status) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "File not found"
	case StatusNotImplemented:
		return "Unsupported Method"
	default:
		return "Unknown"
	}
}

// Code returns the numeric status code.
func (s Status) Code() int {
	return int(s)
}

func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}
