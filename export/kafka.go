// icustrat: ICU Diagnosis Stratification Pipeline
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package export

import (
	"context"
	"fmt"
	"strconv"

	"icustrat/dataset"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a writer for a topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
}

// KafkaSink publishes every row of a table as a JSON message keyed by <name>-<row index>.
type KafkaSink struct {
	Writer MessageWriter
}

// Write implements Sink.
func (s KafkaSink) Write(ctx context.Context, name string, t *dataset.Table) error {
	msgs := make([]kafka.Message, 0, batchSize)
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := s.Writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		msgs = msgs[:0]
		return nil
	}
	for i := 0; i < t.Rows(); i++ {
		data, err := rowJSON(t, i)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(name + "-" + strconv.Itoa(i)),
			Value:   data,
			Headers: []kafka.Header{{Key: "dataset", Value: []byte(name)}},
		})
		if len(msgs) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
