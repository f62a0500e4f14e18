// Package refmap provides reference-managed maps.
//
// Map and SortedMap keep a key cell and a value cell per entry, each created
// by its own ref.Queuing factory, so keys and values can follow different
// policies (weak keys with strong values, strong keys with timed values, ...).
// When either cell of an entry dies the whole entry is removed: the processor
// drains the key queue through the store's DeleteKey and the value queue
// through DeleteValue. Until then the entry is invisible to every lookup,
// view and iteration.
//
// The Keys, Values and Entries views are created once per map and write
// through to it. Maps own a processor and have to be closed with Close.
package refmap
