package dealer

import "errors"

// errProcedureAlreadyExists is returned by Provide, mirroring the
// procedure_already_exists wire error for the in-process registration path
// where there is no session to send an ERROR frame to.
var errProcedureAlreadyExists = errors.New("dealer: procedure already registered on this realm")
