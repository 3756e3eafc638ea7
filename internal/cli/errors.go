package cli

import "errors"

var (
	errDocRequired      = errors.New("document id is required")
	errPageRequired     = errors.New("page id is required")
	errPageViaFlag      = errors.New("use --page to set the page id")
	errPathRequired     = errors.New("at least one path is required")
	errKeyValueRequired = errors.New("at least one key=value or --delete is required")
	errBadKeyValue      = errors.New("expected key=value")
	errUnknownCommand   = errors.New("unknown command")
	errFlagRequiresArg  = errors.New("flag requires an argument")
	errInvalidFiles     = errors.New("invalid transcript(s)")
	errSessionLocked    = errors.New("document is open in another scribe session")
	errUnresolved       = errors.New("unresolved conflict, run reload or overwrite first")
)
