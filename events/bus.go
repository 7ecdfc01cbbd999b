// Package events publica os limites de passo das sagas de liberação.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// TopicReleaseStep é o tópico dos eventos de passo da aprovação de cartas.
const TopicReleaseStep = "release_letter:step"

// Phase é a fronteira observada de um passo.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// StepEvent descreve a transição de um passo da saga.
type StepEvent struct {
	LetterID string    `json:"letter_id"`
	Step     string    `json:"step"`
	Phase    Phase     `json:"phase"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Bus embrulha o EventBus com tipos do domínio.
type Bus struct {
	bus evbus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// PublishStep entrega o evento aos assinantes de forma síncrona.
func (b *Bus) PublishStep(ev StepEvent) {
	b.bus.Publish(TopicReleaseStep, ev)
}

// SubscribeSteps registra um handler e devolve a função que o remove.
func (b *Bus) SubscribeSteps(fn func(StepEvent)) (func(), error) {
	if err := b.bus.Subscribe(TopicReleaseStep, fn); err != nil {
		return nil, err
	}
	return func() { _ = b.bus.Unsubscribe(TopicReleaseStep, fn) }, nil
}
