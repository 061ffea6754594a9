package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
)

// usage: printresult [delivery-id] [printed|failed] [message]
func main() {
	godotenv.Load("../../.env")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := os.Getenv("KAFKA_PRINT_RESULT_TOPIC")
	if topic == "" {
		topic = "print.result"
	}

	deliveryID := "7-A"
	status := events.PrintStatusPrinted
	message := ""
	if len(os.Args) > 1 {
		deliveryID = os.Args[1]
	}
	if len(os.Args) > 2 {
		status = events.PrintStatus(os.Args[2])
	}
	if len(os.Args) > 3 {
		message = os.Args[3]
	}

	teamID, problemID, _ := strings.Cut(deliveryID, "-")

	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	event := events.PrintResultEvent{
		DeliveryID: deliveryID,
		TeamID:     teamID,
		ProblemID:  problemID,
		Status:     status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		fmt.Printf("Error marshaling event: %v\n", err)
		os.Exit(1)
	}

	err = writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.DeliveryID),
		Value: data,
	})
	if err != nil {
		fmt.Printf("Error writing to Kafka: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Print Result Sent ===")
	fmt.Println()
	fmt.Printf("Topic: %s\n", topic)
	fmt.Printf("Delivery ID: %s\n", event.DeliveryID)
	fmt.Printf("Status: %s\n", event.Status)
	fmt.Println()
	fmt.Println("Connected boards should show a notification.")
}
