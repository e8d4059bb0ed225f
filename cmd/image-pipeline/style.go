package main

import "github.com/charmbracelet/lipgloss"

var (
	colorInk    = lipgloss.Color("#E5E9F0")
	colorDim    = lipgloss.Color("#7A8291")
	colorAccent = lipgloss.Color("#88C0D0")
	colorOK     = lipgloss.Color("#A3BE8C")
	colorWarn   = lipgloss.Color("#EBCB8B")
	colorError  = lipgloss.Color("#BF616A")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Foreground(colorDim).Padding(0, 1)
	valueStyle  = lipgloss.NewStyle().Foreground(colorInk).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(colorDim)
	pathStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle     = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)
