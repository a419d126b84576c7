package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"quiz-session-engine/internal/domain"
)

// answerDocument is one resolved question; _id = sessionID:questionID makes
// retried inserts idempotent.
type answerDocument struct {
	ID               string    `bson:"_id"`
	SessionID        string    `bson:"sessionId"`
	Index            int       `bson:"index"`
	QuestionID       string    `bson:"questionId"`
	OptionID         *string   `bson:"optionId"`
	Correct          bool      `bson:"isCorrect"`
	TimeSpentSeconds int       `bson:"timeSpentSeconds"`
	RecordedAt       time.Time `bson:"recordedAt"`
}

// AnswerLog stores the answer log in a MongoDB collection.
type AnswerLog struct {
	collection *mongo.Collection
}

func NewAnswerLog(client *mongo.Client, database string) *AnswerLog {
	return &AnswerLog{collection: client.Database(database).Collection("answers")}
}

func (l *AnswerLog) AppendAnswer(ctx context.Context, sessionID string, answer domain.Answer) error {
	_, err := l.collection.InsertOne(ctx, toDocument(sessionID, answer, time.Now().UTC()))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("append answer: %w", err)
	}
	return nil
}

// Answers returns the logged answers of a session in order.
func (l *AnswerLog) Answers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	cur, err := l.collection.Find(ctx,
		bson.M{"sessionId": sessionID},
		options.Find().SetSort(bson.D{{Key: "index", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find answers: %w", err)
	}
	defer cur.Close(ctx)

	var docs []answerDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Answer{
			Index:            d.Index,
			QuestionID:       d.QuestionID,
			OptionID:         d.OptionID,
			Correct:          d.Correct,
			TimeSpentSeconds: d.TimeSpentSeconds,
		})
	}
	return out, nil
}

func toDocument(sessionID string, a domain.Answer, at time.Time) answerDocument {
	return answerDocument{
		ID:               sessionID + ":" + a.QuestionID,
		SessionID:        sessionID,
		Index:            a.Index,
		QuestionID:       a.QuestionID,
		OptionID:         a.OptionID,
		Correct:          a.Correct,
		TimeSpentSeconds: a.TimeSpentSeconds,
		RecordedAt:       at,
	}
}
