// Package semaphore calcula o indicador de entrega de um ativo.
package semaphore

import "github.com/ferreirogomes/custodia/bundle"

// Color é o valor do semáforo de entrega.
type Color string

const (
	// Red significa custódia onerada por um token ainda não queimado.
	Red   Color = "RED"
	Green Color = "GREEN"
)

// ParseColor aceita apenas RED ou GREEN.
func ParseColor(s string) (Color, bool) {
	switch c := Color(s); c {
	case Red, Green:
		return c, true
	}
	return "", false
}

// Of devolve a cor para o estágio. Um override válido do ativo prevalece.
func Of(stage bundle.Stage, override *string) Color {
	if override != nil {
		if c, ok := ParseColor(*override); ok {
			return c
		}
	}
	if stage == bundle.StageTokenized {
		return Red
	}
	return Green
}
