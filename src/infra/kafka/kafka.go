package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

type KafkaClient struct {
	logger    *slog.Logger
	consumer  sarama.ConsumerGroup
	producer  sarama.SyncProducer
	brokers   []string
	batchSize int
}

type Message struct {
	Key      string
	Value    []byte
	Headers  map[string]string
	internal *sarama.ConsumerMessage
}

// Handler processa um lote. Se devolver erro, nenhuma mensagem do lote é
// marcada e o lote volta a ser entregue pelo Kafka.
type Handler func(ctx context.Context, messages []Message) error

func NewKafkaClient(logger *slog.Logger, brokers string, groupID string, batchSize int) (*KafkaClient, error) {
	brokerList := strings.Split(brokers, ",")

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0

	// Consumer config - otimizado para performance com lotes maiores
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second
	config.Consumer.MaxProcessingTime = 60 * time.Second
	config.Consumer.Fetch.Min = 1
	config.Consumer.Fetch.Default = 1024 * 1024
	config.Consumer.MaxWaitTime = 100 * time.Millisecond
	config.ChannelBufferSize = batchSize * 2

	// Producer config - ordem por chave importa para os eventos de domínio
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 50 * time.Millisecond
	config.Producer.Flush.Messages = 50
	config.Producer.Flush.Bytes = 512 * 1024
	config.Producer.MaxMessageBytes = 1024 * 1024

	consumer, err := sarama.NewConsumerGroup(brokerList, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	logger.Info("Kafka client initialized", "brokers", brokerList, "group_id", groupID, "batch_size", batchSize)

	return &KafkaClient{
		logger:    logger,
		consumer:  consumer,
		producer:  producer,
		brokers:   brokerList,
		batchSize: batchSize,
	}, nil
}

// Consumer bloqueia até ctx ser cancelado.
func (k *KafkaClient) Consumer(ctx context.Context, handler Handler, topic string) error {
	consumerHandler := &consumerGroupHandler{
		logger:    k.logger,
		handler:   handler,
		batchSize: k.batchSize,
	}

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Kafka consumer context cancelled", "topic", topic)
			return nil
		default:
			if err := k.consumer.Consume(ctx, []string{topic}, consumerHandler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				k.logger.Error("Error consuming from topic", "topic", topic, "error", err)
				time.Sleep(5 * time.Second) // Retry delay
				continue
			}
		}
	}
}

func (k *KafkaClient) Producer(ctx context.Context, messages []Message, topic string) error {
	if len(messages) == 0 {
		return nil
	}

	kafkaMessages := make([]*sarama.ProducerMessage, len(messages))
	for i, msg := range messages {
		kafkaMessages[i] = toProducerMessage(topic, msg)
	}

	// SendMessages preserva a ordem das mensagens de uma mesma partição.
	if err := k.producer.SendMessages(kafkaMessages); err != nil {
		var producerErrs sarama.ProducerErrors
		if errors.As(err, &producerErrs) {
			for _, pe := range producerErrs {
				k.logger.ErrorContext(ctx, "Kafka message failed", "topic", topic, "error", pe.Err)
			}
			return fmt.Errorf("batch send failed: %d/%d messages failed", len(producerErrs), len(messages))
		}
		return fmt.Errorf("batch send failed: %w", err)
	}

	k.logger.DebugContext(ctx, "Batch sent", "topic", topic, "messages", len(messages))
	return nil
}

func toProducerMessage(topic string, msg Message) *sarama.ProducerMessage {
	headers := make([]sarama.RecordHeader, 0, len(msg.Headers))
	for key, value := range msg.Headers {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	return &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	}
}

func fromConsumerMessage(message *sarama.ConsumerMessage) Message {
	headers := make(map[string]string, len(message.Headers))
	for _, header := range message.Headers {
		if header != nil {
			headers[string(header.Key)] = string(header.Value)
		}
	}

	return Message{
		Key:      string(message.Key),
		Value:    message.Value,
		Headers:  headers,
		internal: message,
	}
}

func (k *KafkaClient) Close() error {
	var errs []error

	if err := k.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}

	if err := k.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}

	return errors.Join(errs...)
}

// consumerGroupHandler implementa sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	logger    *slog.Logger
	handler   Handler
	batchSize int
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup", "batch_size", h.batchSize, "member_id", session.MemberID())
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	batchSize := h.batchSize
	batchTimeout := 2 * time.Second

	h.logger.Debug("Starting consumer for partition",
		"partition", claim.Partition(), "batch_size", batchSize, "timeout", batchTimeout)

	messages := make([]Message, 0, batchSize)
	timer := time.NewTimer(batchTimeout)
	defer timer.Stop()

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				h.processBatch(session, messages)
				return nil
			}

			messages = append(messages, fromConsumerMessage(message))

			if len(messages) >= batchSize {
				if !h.processBatch(session, messages) {
					// lote rejeitado: encerra a claim para que o Kafka reentregue a partir do último offset marcado
					return nil
				}
				messages = messages[:0]
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if !h.processBatch(session, messages) {
				return nil
			}
			messages = messages[:0]
			timer.Reset(batchTimeout)

		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch devolve false quando o handler rejeita o lote.
func (h *consumerGroupHandler) processBatch(session sarama.ConsumerGroupSession, messages []Message) bool {
	if len(messages) == 0 {
		return true
	}

	if err := h.handler(session.Context(), messages); err != nil {
		h.logger.Error("Handler error for batch", "messages", len(messages), "error", err)
		// Don't mark messages - they will be retried
		return false
	}

	for _, msg := range messages {
		if msg.internal != nil {
			session.MarkMessage(msg.internal, "")
		}
	}

	h.logger.Debug("Successfully processed batch", "messages", len(messages))
	return true
}
