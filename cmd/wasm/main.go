//go:build js && wasm

// Package main provides WASM bindings for the charsheet engine.
// Browsers use them to resolve sheets locally while a player edits.
package main

import (
	"encoding/json"
	"syscall/js"

	"github.com/dlovans/charsheet/pkg/lint"
	"github.com/dlovans/charsheet/pkg/ruleset"
	"github.com/dlovans/charsheet/pkg/runtime"
)

func main() {
	js.Global().Set("CharsheetNormalize", js.FuncOf(normalize))
	js.Global().Set("CharsheetValidate", js.FuncOf(validate))
	js.Global().Set("CharsheetLint", js.FuncOf(lintSchema))
	js.Global().Set("CharsheetResolve", js.FuncOf(resolve))
	js.Global().Set("CharsheetVerify", js.FuncOf(verify))

	// Keep the Go runtime alive
	select {}
}

// Usage: CharsheetNormalize(schemaJSON) -> { result: schema, error?: string }
func normalize(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("CharsheetNormalize requires 1 argument: schemaJSON")
	}
	doc, err := decode(args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(ruleset.Normalize(doc))
}

// Usage: CharsheetValidate(schemaJSON) -> { result: {valid, errors, normalizedSchema} }
func validate(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("CharsheetValidate requires 1 argument: schemaJSON")
	}
	doc, err := decode(args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(ruleset.Validate(doc))
}

// Usage: CharsheetLint(schemaJSON) -> { result: {valid, issues} }
func lintSchema(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return makeError("CharsheetLint requires 1 argument: schemaJSON")
	}
	doc, err := decode(args[0].String())
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(lint.Run(doc))
}

// Usage: CharsheetResolve(schemaJSON, valuesJSON, role) -> { result: sheet }
func resolve(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeError("CharsheetResolve requires 3 arguments: schemaJSON, valuesJSON, role")
	}
	schema, values, role, err := sheetArgs(args)
	if err != nil {
		return makeError(err.Error())
	}
	return makeResult(runtime.Redact(schema, runtime.Resolve(schema, values, role), role))
}

// Usage: CharsheetVerify(schemaJSON, valuesJSON, role, claimedJSON) -> { result: {valid, mismatches} }
func verify(this js.Value, args []js.Value) any {
	if len(args) < 4 {
		return makeError("CharsheetVerify requires 4 arguments: schemaJSON, valuesJSON, role, claimedJSON")
	}
	schema, values, role, err := sheetArgs(args)
	if err != nil {
		return makeError(err.Error())
	}
	var claimed map[string]any
	if err := json.Unmarshal([]byte(args[3].String()), &claimed); err != nil {
		return makeError("claimed values: " + err.Error())
	}
	ok, mismatches := runtime.Verify(schema, values, role, claimed)
	return makeResult(map[string]any{"valid": ok, "mismatches": mismatches})
}

func sheetArgs(args []js.Value) (*ruleset.Schema, map[string]any, ruleset.Role, error) {
	doc, err := decode(args[0].String())
	if err != nil {
		return nil, nil, "", err
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(args[1].String()), &values); err != nil {
		return nil, nil, "", err
	}
	return ruleset.Normalize(doc), values, ruleset.ParseRole(args[2].String()), nil
}

func decode(text string) (any, error) {
	var doc any
	err := json.Unmarshal([]byte(text), &doc)
	return doc, err
}

// makeError creates a JS-friendly error response
func makeError(msg string) map[string]any {
	return map[string]any{
		"error": msg,
	}
}

// makeResult converts v to plain maps and slices, which js.ValueOf accepts.
func makeResult(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return makeError(err.Error())
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return makeError(err.Error())
	}
	return map[string]any{
		"result": result,
	}
}
