package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Processor handles one consumed message. A non-nil error sends the message
// to the dead letter topic.
type Processor interface {
	Process(ctx context.Context, msg *ckafka.Message) error
}

// Ingester is the pipeline entry point the consumer feeds.
type Ingester interface {
	Ingest(ctx context.Context, rec model.ScoreRecord) model.Outcome
}

// ScoreProcessor decodes JSON score records and ingests them.
type ScoreProcessor struct {
	ingester Ingester
}

// NewScoreProcessor returns a processor feeding ingester.
func NewScoreProcessor(ingester Ingester) *ScoreProcessor {
	return &ScoreProcessor{ingester: ingester}
}

// Process implements Processor.
func (p *ScoreProcessor) Process(ctx context.Context, msg *ckafka.Message) error {
	var rec model.ScoreRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if out := p.ingester.Ingest(ctx, rec); !out.OK() {
		return fmt.Errorf("%w: player %q", ErrIngest, rec.PlayerID)
	}
	return nil
}
