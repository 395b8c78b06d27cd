package main

import "github.com/charmbracelet/lipgloss"

var (
	clrBrand = lipgloss.Color("214")
	clrGreen = lipgloss.Color("114")
	clrRed   = lipgloss.Color("203")
	clrCyan  = lipgloss.Color("81")
	clrDim   = lipgloss.Color("245")
)

var (
	headerStyle    = lipgloss.NewStyle().Foreground(clrBrand).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	toolStyle      = lipgloss.NewStyle().Foreground(clrCyan).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(clrCyan)
	errorStyle     = lipgloss.NewStyle().Foreground(clrRed).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(clrDim)
)
