package errors

import "fmt"

type UnknownCommand struct {
	Name string
}

func (e *UnknownCommand) Error() string {
	return fmt.Sprintf("Unknown command '%s'", e.Name)
}

type MissingValue struct {
	Command string
}

func (e *MissingValue) Error() string {
	return fmt.Sprintf("Command '%s' requires a value", e.Command)
}

type WrongValueType struct {
	Command  string
	Expected string
}

func (e *WrongValueType) Error() string {
	return fmt.Sprintf("Command '%s' expects a %s value", e.Command, e.Expected)
}

type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("Malformed frame: %s", e.Reason)
}

type DuplicateConnectionId struct {
	Id string
}

func (e *DuplicateConnectionId) Error() string {
	return fmt.Sprintf("Attempted to register connection with duplicate ID %s", e.Id)
}

type MissingConnectionId struct {
	Id string
}

func (e *MissingConnectionId) Error() string {
	return fmt.Sprintf("Missing connection with id=%s", e.Id)
}

type TooManyConnections struct{}

func (e *TooManyConnections) Error() string {
	return "Too many connections - cannot register new connection"
}

type HeaderNotFound struct {
	Id string
}

func (e *HeaderNotFound) Error() string {
	return fmt.Sprintf("No header with id '%s' in current outline", e.Id)
}
