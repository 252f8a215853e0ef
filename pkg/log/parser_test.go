package log

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	poolProgram    = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
	custodyProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		typ     LineType
		program string
		depth   int
		message string
	}{
		{line: "Program " + poolProgram + " invoke [1]", typ: LineInvoke, program: poolProgram, depth: 1},
		{line: "Program " + custodyProgram + " success", typ: LineSuccess, program: custodyProgram},
		{line: "Program " + poolProgram + " failed: DUST_AMOUNT: swap output rounds to zero", typ: LineFailed, program: poolProgram, message: "DUST_AMOUNT: swap output rounds to zero"},
		{line: "Program log: Instruction: Buy", typ: LineLog, message: "Instruction: Buy"},
		{line: "Program data: " + b64("event"), typ: LineData},
		{line: "Program " + poolProgram + " invoke [x]", typ: LineUnknown},
		{line: "something else", typ: LineUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			parsed := ParseLine(tt.line)
			assert.Equal(t, tt.typ, parsed.Type)
			assert.Equal(t, tt.program, parsed.ProgramID)
			assert.Equal(t, tt.depth, parsed.Depth)
			assert.Equal(t, tt.message, parsed.Message)
			assert.Equal(t, tt.line, parsed.Raw)
		})
	}

	assert.Equal(t, []byte("ab"), ParseLine("Program data: "+b64("a")+" "+b64("b")).Data)
	assert.Nil(t, ParseLine("Program data: !!!").Data)
}

var swapLogs = []string{
	"Program " + poolProgram + " invoke [1]",
	"Program log: Instruction: Buy",
	"Program " + custodyProgram + " invoke [2]",
	"Program data: " + b64("inner"),
	"Program " + custodyProgram + " success",
	"Program data: " + b64("outer"),
	"Program " + poolProgram + " success",
}

func TestTrace(t *testing.T) {
	roots := Trace(swapLogs)
	require.Len(t, roots, 1)

	outer := roots[0]
	assert.Equal(t, poolProgram, outer.ProgramID)
	assert.Equal(t, 1, outer.Depth)
	assert.Equal(t, []string{"Instruction: Buy"}, outer.Logs)
	assert.Equal(t, [][]byte{[]byte("outer")}, outer.Data)
	require.Len(t, outer.Children, 1)
	assert.Equal(t, custodyProgram, outer.Children[0].ProgramID)
	assert.Equal(t, 2, outer.Children[0].Depth)

	var visited []string
	Walk(roots, func(f *Frame) { visited = append(visited, f.ProgramID) })
	assert.Equal(t, []string{poolProgram, custodyProgram}, visited)
}

func TestTraceFailure(t *testing.T) {
	roots := Trace([]string{
		"Program " + poolProgram + " invoke [1]",
		"Program " + poolProgram + " failed: INSUFFICIENT_FUNDS",
		"Program log: stray",
	})
	require.Len(t, roots, 1)
	assert.True(t, roots[0].Failed)
	assert.Equal(t, "INSUFFICIENT_FUNDS", roots[0].Error)
	assert.Empty(t, roots[0].Logs)
}

func TestProgramData(t *testing.T) {
	data := ProgramData(swapLogs, poolProgram)
	require.Len(t, data, 1)
	assert.Equal(t, []byte("outer"), data[0])

	data = ProgramData(swapLogs, custodyProgram)
	require.Len(t, data, 1)
	assert.Equal(t, []byte("inner"), data[0])

	assert.Empty(t, ProgramData(swapLogs, "11111111111111111111111111111111"))
}
