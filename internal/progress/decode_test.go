package progress

import (
	"strings"
	"testing"
)

func collect(ch <-chan Message) []Message {
	var msgs []Message
	for m := range ch {
		msgs = append(msgs, m)
	}
	return msgs
}

func TestDecode_TypedMessages(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"type":"state","fields":{"stage":"prep"}}`,
		`{"type":"loss","loss":{"step":1,"value":2.5}}`,
		`{"type":"response","response":{"status":"success","message":"done","data":{"model":"out.ckpt"}}}`,
	}, "\n")

	msgs := collect(Decode(strings.NewReader(input), nil))

	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != KindState || msgs[0].Fields["stage"] != "prep" {
		t.Errorf("Unexpected state message: %+v", msgs[0])
	}
	if msgs[1].Kind != KindLoss || msgs[1].Loss.Value != 2.5 {
		t.Errorf("Unexpected loss message: %+v", msgs[1])
	}
	if msgs[2].Kind != KindResponse || msgs[2].Response.Status != StatusSuccess {
		t.Errorf("Unexpected response message: %+v", msgs[2])
	}
	if msgs[2].Response.Data["model"] != "out.ckpt" {
		t.Errorf("Expected response data, got %v", msgs[2].Response.Data)
	}
}

func TestDecode_ToleratesPlainWorkerOutput(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"epoch 1/10 starting",
		"",
		`{"broken json`,
		`{"type":"unknown","fields":{}}`,
		`{"some":"json but not a progress message"}`,
		`{"type":"loss","loss":{"step":1,"value":1.5}}`,
	}, "\n")

	msgs := collect(Decode(strings.NewReader(input), nil))

	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Kind != KindLoss {
		t.Errorf("Expected loss message, got %+v", msgs[0])
	}
}

func TestDecode_EmptyStream(t *testing.T) {
	t.Parallel()

	msgs := collect(Decode(strings.NewReader(""), nil))
	if len(msgs) != 0 {
		t.Errorf("Expected no messages, got %v", msgs)
	}
}

func TestEmitterDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	em := NewEmitter(&sb)
	if err := em.Update(map[string]any{"stage": "train"}); err != nil {
		t.Fatal(err)
	}
	if err := em.Complete("finished", nil); err != nil {
		t.Fatal(err)
	}

	msgs := collect(Decode(strings.NewReader(sb.String()), nil))
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != KindState || msgs[1].Kind != KindResponse {
		t.Errorf("Unexpected kinds: %v, %v", msgs[0].Kind, msgs[1].Kind)
	}
}
