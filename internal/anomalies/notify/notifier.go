package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"machinery-cloud/internal/eventing"
	machines "machinery-cloud/internal/machines/domain"
)

// MachineReader loads machine metadata for notification rendering.
type MachineReader interface {
	Get(ctx context.Context, id string) (*machines.Machine, error)
}

// Notifier renders and delivers anomaly lifecycle events to a channel.
type Notifier struct {
	machines MachineReader
	channel  Channel
	template *Template
	logger   *log.Logger
	timeout  time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithRequestTimeout overrides the delivery timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// NewNotifier constructs a notifier.
func NewNotifier(machineReader MachineReader, channel Channel, tpl *Template, logger *log.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("anomaly notifier: nil channel")
	}
	if tpl == nil {
		return nil, errors.New("anomaly notifier: nil template")
	}
	notifier := &Notifier{
		machines: machineReader,
		channel:  channel,
		template: tpl,
		logger:   logger,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Register subscribes the notifier to anomaly lifecycle events.
func (n *Notifier) Register(bus eventing.Bus) {
	if n == nil || bus == nil {
		return
	}
	eventing.On(bus, func(ctx context.Context, evt eventing.AnomalyRaised) error {
		n.notifyRaised(ctx, evt)
		return nil
	})
	eventing.On(bus, func(ctx context.Context, evt eventing.AnomalyEscalated) error {
		n.notifyEscalated(ctx, evt)
		return nil
	})
}

func (n *Notifier) notifyRaised(ctx context.Context, evt eventing.AnomalyRaised) {
	data := TemplateData{
		Machine:    n.machineName(ctx, evt.MachineID),
		MachineID:  evt.MachineID,
		Parameter:  evt.Parameter,
		Observed:   fmt.Sprintf("%.2f", evt.Observed),
		Expected:   fmt.Sprintf("%.2f", evt.Expected),
		Deviation:  fmt.Sprintf("%.1f%%", evt.DeviationPct),
		Score:      fmt.Sprintf("%.2f", evt.Score),
		Time:       evt.At.Format(time.RFC3339),
		Event:      "raised",
		EventLabel: "Raised",
	}
	n.send(ctx, data)
}

func (n *Notifier) notifyEscalated(ctx context.Context, evt eventing.AnomalyEscalated) {
	data := TemplateData{
		Machine:    n.machineName(ctx, evt.MachineID),
		MachineID:  evt.MachineID,
		Parameter:  evt.Parameter,
		Score:      fmt.Sprintf("%.2f", evt.Score),
		Time:       evt.At.Format(time.RFC3339),
		Event:      "escalated",
		EventLabel: "Escalated",
	}
	n.send(ctx, data)
}

func (n *Notifier) send(ctx context.Context, data TemplateData) {
	content, err := n.template.Render(data)
	if err != nil {
		n.logf("anomaly notify render error: %v", err)
		return
	}
	note := Notification{
		Event:      data.Event,
		MachineID:  data.MachineID,
		Parameter:  data.Parameter,
		Body:       content,
		OccurredAt: data.Time,
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.channel.Send(sendCtx, note); err != nil {
		n.logf("anomaly notify send error: %v", err)
	}
}

func (n *Notifier) machineName(ctx context.Context, id string) string {
	if n.machines == nil {
		return id
	}
	machine, err := n.machines.Get(ctx, id)
	if err != nil || machine == nil {
		return id
	}
	return machine.Name
}

func (n *Notifier) logf(format string, args ...any) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}
