// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/beevik/prefixtree/v2"
)

type settings struct {
	HexMode         bool   `doc:"hexadecimal input mode"`
	ExitAddr        uint16 `doc:"CPU stores here halt the program"`
	PutcharAddr     uint16 `doc:"CPU stores here print a character"`
	ZpRegBase       byte   `doc:"zero page address of RC0"`
	MemDumpBytes    int    `doc:"default number of memory bytes to dump"`
	DisasmLines     int    `doc:"default number of lines to disassemble"`
	LogPackets      bool   `doc:"log remote protocol packets"`
	NextDisasmAddr  uint16 `doc:"address of next disassembly"`
	NextMemDumpAddr uint16 `doc:"address of next memory dump"`
}

func newSettings() *settings {
	return &settings{
		HexMode:      false,
		ExitAddr:     0xfff8,
		PutcharAddr:  0xfff9,
		ZpRegBase:    0x00,
		MemDumpBytes: 64,
		DisasmLines:  10,
		LogPackets:   false,
	}
}

type settingsField struct {
	name  string
	index int
	kind  reflect.Kind
	doc   string
}

var (
	settingsTree   = prefixtree.New[*settingsField]()
	settingsFields []settingsField
)

func init() {
	settingsType := reflect.TypeOf(settings{})
	settingsFields = make([]settingsField, settingsType.NumField())
	for i := range settingsFields {
		f := settingsType.Field(i)
		doc, _ := f.Tag.Lookup("doc")
		settingsFields[i] = settingsField{
			name:  f.Name,
			index: i,
			kind:  f.Type.Kind(),
			doc:   doc,
		}
		settingsTree.Add(strings.ToLower(f.Name), &settingsFields[i])
	}
}

// Display writes every setting, its value and its description to 'w'.
func (s *settings) Display(w io.Writer) {
	value := reflect.ValueOf(s).Elem()
	for i, f := range settingsFields {
		fmt.Fprintf(w, "    %-16s %-8s (%s)\n", f.name, formatSetting(value.Field(i)), f.doc)
	}
}

func formatSetting(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Uint8:
		return fmt.Sprintf("$%02X", v.Uint())
	case reflect.Uint16:
		return fmt.Sprintf("$%04X", v.Uint())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Lookup finds the setting whose name matches or is uniquely prefixed by
// 'key'.
func (s *settings) Lookup(key string) (*settingsField, error) {
	f, err := settingsTree.FindValue(strings.ToLower(key))
	if err != nil {
		return nil, fmt.Errorf("setting '%s': %w", key, err)
	}
	return f, nil
}

// Set parses 'value' according to the setting's type and stores it.
// Numbers are parsed with 'parseNum', which returns values in the range of
// a 16-bit address.
func (s *settings) Set(key, value string, parseNum func(string) (int, error)) error {
	f, err := s.Lookup(key)
	if err != nil {
		return err
	}

	out := reflect.ValueOf(s).Elem().Field(f.index)
	switch f.kind {
	case reflect.Bool:
		b, err := stringToBool(value)
		if err != nil {
			return err
		}
		out.SetBool(b)

	case reflect.Uint8, reflect.Uint16, reflect.Int:
		n, err := parseNum(value)
		if err != nil {
			return err
		}
		if out.CanUint() && out.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d out of range for %s", n, f.name)
		}
		if out.CanUint() {
			out.SetUint(uint64(n))
		} else {
			out.SetInt(int64(n))
		}

	default:
		return fmt.Errorf("setting %s cannot be changed", f.name)
	}
	return nil
}
