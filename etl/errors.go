// Copyright 2024-2025 The appsink Authors
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

package etl

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrContractInvalid is returned when the mapping contract is missing,
	// inconsistent, or carries dangling references. Fatal to the run.
	ErrContractInvalid = errors.NewKind("invalid contract: %s")

	// ErrExpressionParse is returned when a calculated-field expression in
	// the contract violates the expression grammar. Fatal to the run.
	ErrExpressionParse = errors.NewKind("malformed expression %q: %s")

	// ErrValidation is returned when an application's XML cannot be
	// processed: malformed document, missing or out-of-range app id, or no
	// valid primary contact. Fails that application only.
	ErrValidation = errors.NewKind("application cannot be processed: %s")

	// ErrMapping is returned when a required column cannot be populated for
	// a row. Fails that application only.
	ErrMapping = errors.NewKind("table %s: required column %s has no value and no default")

	// ErrEnumNotFound is returned when a field mapping references an enum
	// mapping that the contract does not define.
	ErrEnumNotFound = errors.NewKind("enum mapping %q is not defined%s")

	// ErrTableNotFound is returned when the insertion order or a mapping
	// references a table section that the contract does not define.
	ErrTableNotFound = errors.NewKind("table %q is not defined in the contract%s")

	// ErrUnknownMappingType is returned when a mapping declares a
	// mapping_type token this engine does not implement.
	ErrUnknownMappingType = errors.NewKind("unknown mapping type %q%s")

	// ErrUnknownDataType is returned when a mapping declares a data_type
	// with no registered conversion.
	ErrUnknownDataType = errors.NewKind("unknown data type %q on column %s")

	// ErrPrimaryKeyViolation is returned when an insert trips a primary key
	// or unique constraint on the destination.
	ErrPrimaryKeyViolation = errors.NewKind("duplicate primary key on %s: %s")

	// ErrForeignKeyViolation is returned when an insert references a parent
	// row that does not exist.
	ErrForeignKeyViolation = errors.NewKind("foreign key violation on %s: %s")

	// ErrNotNullViolation is returned when an insert leaves a NOT NULL
	// column without a value.
	ErrNotNullViolation = errors.NewKind("not null violation on %s: %s")

	// ErrCheckViolation is returned when an insert fails a CHECK constraint.
	ErrCheckViolation = errors.NewKind("check constraint violation on %s: %s")

	// ErrBulkInsert is returned when a batch cannot be inserted after the
	// fast path and the per-row fallback have both been exhausted.
	ErrBulkInsert = errors.NewKind("bulk insert into %s failed: %s")

	// ErrTxAtomicity is returned when rolling back a failed application
	// transaction itself fails. The destination may be inconsistent and the
	// operator must investigate.
	ErrTxAtomicity = errors.NewKind("rollback failed after %q; destination may be inconsistent: %s")

	// ErrConnection is returned for transient driver or network failures
	// talking to the staging source or the destination.
	ErrConnection = errors.NewKind("database connection failure: %s")

	// ErrInvalidChildrenNumber is returned when WithChildren is called on an
	// expression with the wrong number of children. Indicates a bug.
	ErrInvalidChildrenNumber = errors.NewKind("%T: invalid children number, got %d, expected %d")

	// ErrInvalidType is returned when a value cannot be represented in the
	// destination column's declared data type.
	ErrInvalidType = errors.NewKind("value %v cannot be converted to %s")

	// ErrAppTimeout is returned when one application exceeds the per-item
	// processing deadline. The application's transaction is rolled back.
	ErrAppTimeout = errors.NewKind("application %d timed out after %s")

	// ErrProcessState is returned on an illegal application state
	// transition. Indicates a bug.
	ErrProcessState = errors.NewKind("application %d cannot move from %s to %s")

	// ErrProcessMissing is returned when a state transition targets an
	// application that is not in the process list.
	ErrProcessMissing = errors.NewKind("application %d is not in the process list")
)

// IsConstraint reports whether err is one of the database constraint kinds.
// The caller decides the retry policy; only primary key violations on
// duplicate-tolerant tables are ever skipped.
func IsConstraint(err error) bool {
	return ErrPrimaryKeyViolation.Is(err) ||
		ErrForeignKeyViolation.Is(err) ||
		ErrNotNullViolation.Is(err) ||
		ErrCheckViolation.Is(err)
}

// IsFatal reports whether err must abort the whole run rather than fail a
// single application.
func IsFatal(err error) bool {
	return ErrContractInvalid.Is(err) || ErrExpressionParse.Is(err)
}
