package pool

import "testing"

func TestBuilderPoolRoundTrip(t *testing.T) {
	sb := GetBuilder()
	sb.WriteString("G1 X1")
	if sb.String() != "G1 X1" {
		t.Errorf("unexpected content %q", sb.String())
	}
	PutBuilder(sb)

	again := GetBuilder()
	if again.Len() != 0 {
		t.Error("pooled builder must come back reset")
	}
	PutBuilder(again)
}

func TestPutBuilderNil(t *testing.T) {
	PutBuilder(nil) // must not panic
}

func TestByteBufferRoundTrip(t *testing.T) {
	b := GetByteBuffer()
	b.Buf = append(b.Buf, "G2 X0 Y10"...)
	PutByteBuffer(b)

	again := GetByteBuffer()
	if len(again.Buf) != 0 {
		t.Error("pooled buffer must come back empty")
	}
	PutByteBuffer(again)
	PutByteBuffer(nil)
}
