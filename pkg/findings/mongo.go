package findings

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the MongoDB collection findings are exported to.
const DefaultCollection = "findings"

// Sink receives aggregated reports.
type Sink interface {
	// Export stores the findings of every resource in report, replacing what
	// the sink held for those resources. It returns the number stored.
	Export(ctx context.Context, report *Report) (int, error)
	Close(ctx context.Context) error
}

// MongoSink exports reports to a MongoDB collection, one document per
// finding. Export keeps the whole-replace contract of finding sets: all
// documents of a resource are deleted before its current findings are
// inserted.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoFinding struct {
	Resource     string    `bson:"resource"`
	Seq          int       `bson:"seq"`
	Severity     string    `bson:"severity"`
	SeverityRank int       `bson:"severity_rank"`
	Category     string    `bson:"category"`
	Description  string    `bson:"description"`
	Remediation  string    `bson:"remediation,omitempty"`
	File         string    `bson:"file,omitempty"`
	Line         int       `bson:"line,omitempty"`
	ExportedAt   time.Time `bson:"exported_at"`
}

// NewMongoSink connects to uri and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if database == "" {
		database = "stackscan"
	}
	return &MongoSink{client: client, coll: client.Database(database).Collection(DefaultCollection)}, nil
}

// Export implements Sink.
func (s *MongoSink) Export(ctx context.Context, report *Report) (int, error) {
	byResource := make(map[string][]any, len(report.Resources))
	now := time.Now().UTC()
	for i, f := range report.Findings {
		byResource[f.Resource] = append(byResource[f.Resource], mongoFinding{
			Resource:     f.Resource,
			Seq:          i,
			Severity:     f.Severity.String(),
			SeverityRank: int(f.Severity),
			Category:     f.Category,
			Description:  f.Description,
			Remediation:  f.Remediation,
			File:         f.File,
			Line:         f.Line,
			ExportedAt:   now,
		})
	}

	total := 0
	for _, resource := range report.Resources {
		if _, err := s.coll.DeleteMany(ctx, bson.M{"resource": resource}); err != nil {
			return total, fmt.Errorf("clear findings of %s: %w", resource, err)
		}
		docs := byResource[resource]
		if len(docs) == 0 {
			continue
		}
		if _, err := s.coll.InsertMany(ctx, docs); err != nil {
			return total, fmt.Errorf("insert findings of %s: %w", resource, err)
		}
		total += len(docs)
	}
	return total, nil
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Sink = (*MongoSink)(nil)
