package client

import (
	"fmt"

	"github.com/openviking/membridge/core/ovrerrors"
)

func validationRoleError(op, role string) error {
	return ovrerrors.Validation(op, fmt.Errorf(`role must be "user" or "assistant", got %q`, role))
}
