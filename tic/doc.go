// Package tic decodes energy meter teleinformation (TIC) frames into flat
// label/value records and tracks differences between consecutive frames.
//
// Two dialects are supported: "standard" (tab separated, 9600 baud) and
// "historic" (space separated, 1200 baud). Composite registers STGE, RELAIS
// and PPOT are expanded into one field per bit group.
//
// Decoder is not safe for concurrent ProcessData calls. Use one Decoder per
// meter; instances share nothing.
package tic
