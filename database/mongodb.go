package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"clinic-triage-backend/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mongoClient *mongo.Client
	mongoDB     *mongo.Database
)

// Collection names.
const (
	CollMessages      = "messages"
	CollPatients      = "patients"
	CollDoctors       = "doctors"
	CollConversations = "conversations"
	CollNotifications = "approval_notifications"
	CollAppointments  = "appointments"
	CollAudit         = "audit_log"
)

// ConnectMongoDB establishes connection to MongoDB
func ConnectMongoDB(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.BuildDatabaseURI()).
		SetMaxPoolSize(uint64(cfg.Database.MaxConnections)).
		SetMinPoolSize(uint64(cfg.Database.MinConnections)).
		SetMaxConnIdleTime(cfg.Database.MaxIdleTime)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(cfg.Database.Name)

	log.Printf("Connected to MongoDB database: %s", cfg.Database.Name)

	if err := createIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	if mongoDB == nil {
		log.Fatal("MongoDB not initialized")
	}
	return mongoDB
}

// GetMongoClient returns the MongoDB client
func GetMongoClient() *mongo.Client {
	if mongoClient == nil {
		log.Fatal("MongoDB client not initialized")
	}
	return mongoClient
}

// createIndexes creates necessary indexes. The unique indexes are load
// bearing: external_id gives idempotent ingestion, (doctor_id, patient_id)
// caps conversations at one per pair, and message_id caps notifications
// at one per message, all even under concurrent ingestion.
func createIndexes(ctx context.Context) error {
	messages := mongoDB.Collection(CollMessages)
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "requires_approval", Value: 1},
				{Key: "timestamp", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	}
	if _, err := messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	conversations := mongoDB.Collection(CollConversations)
	conversationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "patient_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := conversations.Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	patients := mongoDB.Collection(CollPatients)
	patientIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "wa_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
		},
	}
	if _, err := patients.Indexes().CreateMany(ctx, patientIndexes); err != nil {
		return fmt.Errorf("failed to create patient indexes: %w", err)
	}

	doctors := mongoDB.Collection(CollDoctors)
	doctorIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "wa_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "phone_number_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := doctors.Indexes().CreateMany(ctx, doctorIndexes); err != nil {
		return fmt.Errorf("failed to create doctor indexes: %w", err)
	}

	notifications := mongoDB.Collection(CollNotifications)
	notificationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
		},
	}
	if _, err := notifications.Indexes().CreateMany(ctx, notificationIndexes); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	audit := mongoDB.Collection(CollAudit)
	auditIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "doctor_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	}
	if _, err := audit.Indexes().CreateMany(ctx, auditIndexes); err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}

	log.Println("Database indexes created successfully")
	return nil
}

// DisconnectMongoDB closes the MongoDB connection
func DisconnectMongoDB() error {
	if mongoClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mongoClient.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	log.Println("Disconnected from MongoDB")
	return nil
}

// HealthCheck performs a database health check
func HealthCheck() error {
	client := GetMongoClient()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}
