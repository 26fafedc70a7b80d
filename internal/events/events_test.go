package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "ONBOARDING"}, nil
}

func TestDispatcher_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls int
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls++
		return errors.New("first failed")
	})
	d.Subscribe(EventSLABreached, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventSLABreached})
	assert.Equal(t, 2, calls)
	assert.ErrorContains(t, err, "first failed")

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventCaseCreated}))
}

func TestNatsPublisher_ForwardsOnTypedSubject(t *testing.T) {
	js := &fakeJetStream{}
	d := NewInMemoryDispatcher()
	NewNatsPublisher(js, nil).Attach(d)

	err := d.Publish(context.Background(), Event{ID: "evt-1", Type: EventCaseEscalated, CaseID: "case-1"})
	require.NoError(t, err)

	require.Equal(t, []string{"onboarding.case_escalated"}, js.subjects)
	var decoded Event
	require.NoError(t, json.Unmarshal(js.payloads[0], &decoded))
	assert.Equal(t, "case-1", decoded.CaseID)
}

func TestNatsPublisher_WrapsPublishErrors(t *testing.T) {
	js := &fakeJetStream{err: nats.ErrTimeout}
	err := NewNatsPublisher(js, nil).Forward(context.Background(), Event{Type: EventSLAWarning})
	assert.ErrorIs(t, err, nats.ErrTimeout)
	assert.ErrorContains(t, err, "onboarding.sla_warning")
}

func TestStaffActor(t *testing.T) {
	assert.Equal(t, SystemActor, StaffActor(""))
	actor := StaffActor("u-1")
	require.NotNil(t, actor.StaffID)
	assert.Equal(t, "u-1", *actor.StaffID)
}
