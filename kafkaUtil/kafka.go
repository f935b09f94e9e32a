package kafkaUtil

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/packetvisor/skb-lifecycle-tracking/events"
	"github.com/packetvisor/skb-lifecycle-tracking/utils"
)

var kafkaWriter *kafka.Writer
var KafkaErrMsgCount = 0
var KafkaErrMsgEpoch = time.Now()

const eventsTopic = "skb.tracking.events"

func InitKafka() {
	kafka_url := os.Getenv("TRACKING_KAFKA_BROKER_URL")
	utils.PrintLog("kafka_url: " + kafka_url)

	kafka_batch_size, e := strconv.Atoi(os.Getenv("TRACKING_KAFKA_BATCH_SIZE"))
	if e != nil {
		utils.PrintLog("TRACKING_KAFKA_BATCH_SIZE should be valid integer")
		return
	}

	kafka_batch_time_secs, e := strconv.Atoi(os.Getenv("TRACKING_KAFKA_BATCH_TIME_SECS"))
	if e != nil {
		utils.PrintLog("TRACKING_KAFKA_BATCH_TIME_SECS should be valid integer")
		return
	}
	kafka_batch_time_secs_duration := time.Duration(kafka_batch_time_secs)

	for {
		kafkaWriter = getKafkaWriter(kafka_url, eventsTopic, kafka_batch_size, kafka_batch_time_secs_duration*time.Second)
		utils.LogMemoryStats()
		utils.PrintLog("logging kafka stats before pushing message")
		LogKafkaStats()
		value := map[string]string{
			"testConnectionString": "kafkaInit",
		}

		out, _ := json.Marshal(value)
		ctx := context.Background()
		err := Produce(ctx, string(out))
		utils.PrintLog("logging kafka stats post pushing message")
		LogKafkaStats()
		if err != nil {
			log.Println("error establishing connection with kafka, sending message failed, retrying in 2 seconds", err)
			kafkaWriter.Close()
			time.Sleep(time.Second * 2)
		} else {
			utils.PrintLog("connection established with kafka successfully")
			kafkaWriter.Completion = kafkaCompletion()
			break
		}
	}
}

func kafkaCompletion() func(messages []kafka.Message, err error) {
	return func(messages []kafka.Message, err error) {
		if err != nil {
			KafkaErrMsgCount += len(messages)
			log.Printf("kafkaErrMsgCount : %d, messagesCount %d", KafkaErrMsgCount, len(messages))
		}
	}
}

func Close() {
	if kafkaWriter == nil {
		return
	}
	kafkaWriter.Close()
	log.Printf("kafka closed")
}

func LogKafkaStats() {
	stats := kafkaWriter.Stats()
	log.Printf("Stats - Dials %d, Writes %d, Messages %d, Bytes %d, Errors %d, DialTime %v, BatchTime %v, "+
		"WriteTime %v, WaitTime %v, Retries %d, BatchSize %d, BatchBytes %d, MaxAttempts %d, MaxBatchSize %d, "+
		"BatchTimeout %v, ReadTimeout %v, WriteTimeout %v, RequiredAcks %d, Async %t, Topic %s", stats.Dials,
		stats.Writes, stats.Messages, stats.Bytes, stats.Errors, stats.DialTime, stats.BatchTime, stats.WriteTime,
		stats.WaitTime, stats.Retries, stats.BatchSize, stats.BatchBytes, stats.MaxAttempts, stats.MaxBatchSize,
		stats.BatchTimeout, stats.ReadTimeout, stats.WriteTimeout, stats.RequiredAcks, stats.Async, stats.Topic)
}

func LogKafkaError() {
	if time.Since(KafkaErrMsgEpoch).Seconds() >= 10 {

		if KafkaErrMsgCount > 1000 {
			log.Println("kafka error messages exceeded threshold, sleeping for 10 sec ", time.Now())
			time.Sleep(10 * time.Second)
		}
		KafkaErrMsgCount = 0
		KafkaErrMsgEpoch = time.Now()
	}
}

// ProduceTrackingEvent JSON-encodes a correlation event and produces it
// to the tracking topic. Emission is best effort; a failed produce is
// counted by the completion callback and never reported to the caller.
func ProduceTrackingEvent(ev *events.SkbTrackingEvent, observedAt uint64, ksym uint64) {
	if kafkaWriter == nil {
		return
	}

	value := map[string]interface{}{
		"origHead":   ev.OrigHead,
		"firstSeen":  ev.Timestamp,
		"skb":        ev.Skb,
		"dropReason": ev.DropReason,
		"observedAt": observedAt,
		"ksym":       ksym,
	}
	out, err := json.Marshal(value)
	if err != nil {
		return
	}
	Produce(context.Background(), string(out))
}

// ProduceRaw produces an event carrying no tracking section, typically a
// user probe fire. Sections it does not know are skipped.
func ProduceRaw(event *events.RawEvent) {
	if kafkaWriter == nil {
		return
	}

	sections, err := events.Sections(event.Bytes())
	if err != nil {
		return
	}

	value := map[string]interface{}{}
	for _, s := range sections {
		switch s.Owner {
		case events.OwnerCommon:
			if len(s.Data) >= 8 {
				value["observedAt"] = binary.LittleEndian.Uint64(s.Data)
			}
		case events.OwnerKernel:
			if len(s.Data) >= 8 {
				value["ksym"] = binary.LittleEndian.Uint64(s.Data)
			}
		case events.OwnerUserspace:
			if ev, ok := events.UserFromBytes(s.Data); ok {
				value["symbol"] = ev.Symbol
				value["pid"] = ev.Pid
				value["tid"] = ev.Tid
			}
		}
	}
	if len(value) == 0 {
		return
	}

	out, err := json.Marshal(value)
	if err != nil {
		return
	}
	Produce(context.Background(), string(out))
}

func Produce(ctx context.Context, message string) error {
	msg := kafka.Message{
		Value: []byte(message),
	}
	err := kafkaWriter.WriteMessages(ctx, msg)

	if err != nil {
		log.Println("ERROR while writing messages: ", err)
		return err
	}
	return nil
}

func getKafkaWriter(kafkaURL, topic string, batchSize int, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(kafkaURL),
		Topic:        topic,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		MaxAttempts:  1,
		ReadTimeout:  batchTimeout,
		WriteTimeout: batchTimeout,
	}
}
