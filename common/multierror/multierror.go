//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package multierror

import (
	"bytes"
	"fmt"
)

// Error bundles multiple errors and makes them obey the error interface.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "%d error(s) occurred:", len(e.errs))
	for _, err := range e.errs {
		fmt.Fprintf(buf, "\n%s", err)
	}
	return buf.String()
}

// Errors returns the bundled errors in the order they were appended.
func (e *Error) Errors() []error {
	return e.errs
}

// Append combines err with errs, skipping nil values.
// If nothing is left, nil is returned. A single remaining error is returned as is,
// so that callers that only ever hit one failure still see the original error value.
// Two or more errors are bundled into an *Error; appending to an existing *Error
// extends it.
func Append(err error, errs ...error) error {
	var all []error
	if me, ok := err.(*Error); ok {
		all = append(all, me.errs...)
	} else if err != nil {
		all = append(all, err)
	}
	for _, e := range errs {
		if e == nil {
			continue
		}
		if me, ok := e.(*Error); ok {
			all = append(all, me.errs...)
		} else {
			all = append(all, e)
		}
	}
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	}
	return &Error{errs: all}
}
