// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package errcode holds the stable validation error-code identities.
// Numeric values are part of the wire contract: a compiled
// Program's RETURN instructions and a bytecode's encoded literals embed
// these as plain integers, so the order below must never be rearranged
// (only appended to).
package errcode

// Code is a stable runtime validation error identity. Zero always means
// "valid" (see vm.RETURN semantics, §4.5).
type Code uint16

const (
	None Code = iota
	UnexpectedToken
	NotInteger
	Number
	TooFewProps
	TooManyProps
	MissingRequired
	SplitCondition
	BadPropertyName
	MatchCase
	LengthTooShort
	LengthTooLong
	BadRegexp
	InvalidString
	Closed
)

var names = [...]string{
	None:            "None",
	UnexpectedToken: "UnexpectedToken",
	NotInteger:      "NotInteger",
	Number:          "Number",
	TooFewProps:     "TooFewProps",
	TooManyProps:    "TooManyProps",
	MissingRequired: "MissingRequired",
	SplitCondition:  "SplitCondition",
	BadPropertyName: "BadPropertyName",
	MatchCase:       "MatchCase",
	LengthTooShort:  "LengthTooShort",
	LengthTooLong:   "LengthTooLong",
	BadRegexp:       "BadRegexp",
	InvalidString:   "InvalidString",
	Closed:          "Closed",
}

func (c Code) String() string {
	if int(c) < len(names) && names[c] != "" {
		return names[c]
	}
	return "Unknown"
}

func (c Code) Error() string { return c.String() }
