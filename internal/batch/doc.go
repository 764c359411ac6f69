// Package batch runs the label reader over a sequence of photographs.
//
// A Runner processes images strictly in the order it is given them. Each
// image is detected, every label gets a catalogue key and parsed fields, and
// the cards are handed to a correspondence tracker according to the side the
// sheet color stands for. Front crops are saved under their own key, back
// crops under the key of the front they were matched to. Merged rows
// accumulate in a CSV table.
//
// A Runner owns its tracker, so one Runner must not be shared between
// unrelated scan sessions or used from several goroutines. Watch feeds a
// Runner from a scan directory as files arrive.
package batch
