// Package arf lays out neural recordings in ARF containers.
//
// A recording section is spread over three kinds of container file:
//
//   - continuous files, one per processor, holding one int16 dataset per
//     channel under /rec_<n>
//   - an events file with one compound table per event type under
//     /event_types
//   - a spikes file with one compound table per channel group under
//     /channel_groups
//
// Every file carries the root attribute arf_version. Event and spike times
// are stored in seconds as float32.
package arf
