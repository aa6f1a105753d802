package errors_test

import (
	"fmt"

	"github.com/agentstation/quorum/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := errors.NewNotFoundError("record", "5001")

	if errors.IsNotFound(err) {
		fmt.Println("Record not found")
	}

	// Output: Record not found
}

// Example_aPIError demonstrates classifying a remote failure.
func Example_aPIError() {
	err := errors.NewAPIError("source", 503, "https://registry.example/5001", "Service Unavailable")

	if errors.IsTransient(err) {
		fmt.Println("Transient failure - retry later")
	}

	// Output: Transient failure - retry later
}

// Example_structureError shows a rejected sample.
func Example_structureError() {
	err := errors.NewIdentityError("5001", "identity", "5002")

	fmt.Println(errors.IsStructure(err), errors.IsTransient(err))
	fmt.Println(err)

	// Output:
	// true false
	// target 5001: identity expected "5001", got "5002"
}

// Example_batchError shows the only fatal outcome of a batch.
func Example_batchError() {
	err := errors.NewBatchError("records", 0, []string{"5001"})

	if errors.IsBatchFailed(err) {
		fmt.Printf("%d unresolved: %v\n", err.Failures, err.Targets)
	}

	// Output: 1 unresolved: [5001]
}
