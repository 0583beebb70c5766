package server

import (
	"errors"
	"fmt"
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/internal/errdefs"
	multierror "github.com/hashicorp/go-multierror"
	"gotest.tools/v3/assert"
)

func TestUnwrapErrors(t *testing.T) {
	testcases := map[string]struct {
		err      error
		expected *apitypes.ErrorResponse
	}{
		"non-HTTP error": {
			err:      errors.New("foobar"),
			expected: &apitypes.ErrorResponse{Message: "foobar"},
		},
		"error wrapped by a HTTP-only error": {
			err:      errdefs.InvalidParameter(errors.New("foobar")),
			expected: &apitypes.ErrorResponse{Message: "foobar"},
		},
		"error wrapped multiple times with a HTTP-only error": {
			err:      errdefs.InvalidParameter(errdefs.Conflict(errors.New("foobar"))),
			expected: &apitypes.ErrorResponse{Message: "foobar"},
		},
		"wrapping error with no context": {
			err:      fmt.Errorf("%w", errors.New("foobar")),
			expected: &apitypes.ErrorResponse{Message: "foobar", Errors: []*apitypes.ErrorResponse{{Message: "foobar"}}},
		},
		"tree with errors.Join": {
			err: errors.Join(
				errors.New("foo"),
				errors.Join(errors.New("bar"), errors.New("baz")),
				errors.New("one more error"),
			),
			expected: &apitypes.ErrorResponse{
				Message: `3 errors occurred:
	* foo
	* 2 errors occurred:
		* bar
		* baz
	* one more error`,
				Errors: []*apitypes.ErrorResponse{
					{Message: "foo"},
					{
						Message: `2 errors occurred:
	* bar
	* baz`,
						Errors: []*apitypes.ErrorResponse{
							{Message: "bar"},
							{Message: "baz"},
						},
					},
					{Message: "one more error"},
				},
			},
		},
		"page not found error": {err: pageNotFoundError{}, expected: &apitypes.ErrorResponse{Message: "page not found"}},
		"multi %w verb": {
			err: fmt.Errorf("foo: %w, %w", errors.New("bar"), errors.New("baz")),
			expected: &apitypes.ErrorResponse{
				Message: "foo: bar, baz",
				Errors: []*apitypes.ErrorResponse{
					{Message: "bar"},
					{Message: "baz"},
				},
			},
		},
		"tree with github.com/hashicorp/go-multierror, multi %w verbs and errors.Join": {
			err: multierror.Append(
				errors.New("foo"),
				fmt.Errorf("bar: %w, %w", errors.New("baz"), errors.New("blah")),
				errors.Join(errors.New("one more error"), errors.New("and a last one"))),
			expected: &apitypes.ErrorResponse{
				Message: `3 errors occurred:
	* foo
	* bar: baz, blah
	* 2 errors occurred:
		* one more error
		* and a last one`,
				Errors: []*apitypes.ErrorResponse{
					{Message: "foo"},
					{
						Message: "bar: baz, blah",
						Errors: []*apitypes.ErrorResponse{
							{Message: "baz"},
							{Message: "blah"},
						},
					},
					{
						Message: `2 errors occurred:
	* one more error
	* and a last one`,
						Errors: []*apitypes.ErrorResponse{
							{Message: "one more error"},
							{Message: "and a last one"},
						},
					},
				},
			},
		},
	}

	for tcname, tc := range testcases {
		t.Run(tcname, func(t *testing.T) {
			result := marshalErrorResponse(tc.err)
			assert.DeepEqual(t, tc.expected, result)
		})
	}
}
