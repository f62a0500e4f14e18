// Package testing provides conformance suites for backing store implementations.
//
// Every implementation of backing.MapStore, backing.SortedStore and
// backing.SequenceStore, including ones supplied outside this module, should
// pass the matching suite:
//
//	func TestMyStore(t *testing.T) {
//	    storetesting.RunMapStoreTests(t, "MyStore", func() backing.MapStore[string, string] {
//	        return NewMyStore[string, string]()
//	    })
//	}
package testing
