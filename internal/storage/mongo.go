package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/your-org/facesort/internal/models"
)

const (
	photosCollection  = "photos"
	personsCollection = "persons"
)

type photoDoc struct {
	ID              primitive.ObjectID      `bson:"_id,omitempty"`
	Filename        string                  `bson:"filename"`
	People          []models.FaceAnnotation `bson:"people"`
	State           string                  `bson:"processed,omitempty"`
	ProcessingError string                  `bson:"processing_error,omitempty"`
	Tags            []string                `bson:"tags"`
	CaptureDate     *time.Time              `bson:"capture_date"`
	Location        *string                 `bson:"location"`
	CreatedAt       time.Time               `bson:"created_at"`
	UpdatedAt       time.Time               `bson:"updated_at"`
}

func (d *photoDoc) model() models.Photo {
	p := models.Photo{
		ID:              d.ID.Hex(),
		Filename:        d.Filename,
		People:          d.People,
		State:           models.ProcessingState(d.State),
		ProcessingError: d.ProcessingError,
		Tags:            d.Tags,
		CaptureDate:     d.CaptureDate,
		Location:        d.Location,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if p.State == "" {
		p.State = models.StateUnprocessed
	}
	if p.People == nil {
		p.People = []models.FaceAnnotation{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

type personDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	FaceFile   string             `bson:"face_file"`
	PhotoCount int                `bson:"photo_count"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func (d *personDoc) model() models.Person {
	return models.Person{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		FaceFile:   d.FaceFile,
		PhotoCount: d.PhotoCount,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MongoStore is a DocumentStore on MongoDB. Photos created by other tools may
// lack the processed field entirely; those count as unprocessed.
type MongoStore struct {
	client  *mongo.Client
	photos  *mongo.Collection
	persons *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:  client,
		photos:  db.Collection(photosCollection),
		persons: db.Collection(personsCollection),
	}, nil
}

// EnsureIndexes creates the indexes the batch and listing queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.photos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "processed", Value: 1}}},
		{Keys: bson.D{{Key: "people.person_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create photo indexes: %w", err)
	}
	_, err = s.persons.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: 1}}})
	if err != nil {
		return fmt.Errorf("create person indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

func unprocessedFilter() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"processed": bson.M{"$exists": false}},
		bson.M{"processed": bson.M{"$in": bson.A{"", string(models.StateUnprocessed)}}},
	}}
}

// --- Photos ---

func (s *MongoStore) CreatePhoto(ctx context.Context, filename string) (*models.Photo, error) {
	now := time.Now().UTC()
	doc := photoDoc{
		ID:        primitive.NewObjectID(),
		Filename:  filename,
		People:    []models.FaceAnnotation{},
		State:     string(models.StateUnprocessed),
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.photos.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc photoDoc
	if err := s.photos.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) ListPhotos(ctx context.Context, offset, limit int) ([]models.Photo, int, error) {
	return s.findPhotos(ctx, bson.M{}, offset, limit)
}

func (s *MongoStore) ListPhotosByPerson(ctx context.Context, personID string, offset, limit int) ([]models.Photo, int, error) {
	return s.findPhotos(ctx, bson.M{"people.person_id": personID}, offset, limit)
}

func (s *MongoStore) findPhotos(ctx context.Context, filter bson.M, offset, limit int) ([]models.Photo, int, error) {
	offset, limit = clampPage(offset, limit)

	total, err := s.photos.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count photos: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	photos, err := s.decodePhotos(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return photos, int(total), nil
}

func (s *MongoStore) ListUnprocessedPhotos(ctx context.Context) ([]models.Photo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.decodePhotos(ctx, unprocessedFilter(), opts)
}

func (s *MongoStore) decodePhotos(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Photo, error) {
	cur, err := s.photos.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find photos: %w", err)
	}
	defer cur.Close(ctx)

	photos := []models.Photo{}
	for cur.Next(ctx) {
		var doc photoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode photo: %w", err)
		}
		photos = append(photos, doc.model())
	}
	return photos, cur.Err()
}

func (s *MongoStore) MarkProcessed(ctx context.Context, id string, people []models.FaceAnnotation) error {
	if people == nil {
		people = []models.FaceAnnotation{}
	}
	return s.finish(ctx, id, bson.M{
		"$set": bson.M{
			"people":     people,
			"processed":  string(models.StateProcessed),
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"processing_error": ""},
	})
}

func (s *MongoStore) MarkFailed(ctx context.Context, id string, message string) error {
	return s.finish(ctx, id, bson.M{
		"$set": bson.M{
			"processed":        string(models.StateProcessedWithError),
			"processing_error": message,
			"updated_at":       time.Now().UTC(),
		},
	})
}

func (s *MongoStore) finish(ctx context.Context, id string, update bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	filter := bson.M{"$and": bson.A{bson.M{"_id": oid}, unprocessedFilter()}}
	res, err := s.photos.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("finish photo %s: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.photos.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("check photo %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrPhotoFinalized
}

func (s *MongoStore) AddAnnotation(ctx context.Context, photoID string, ann models.FaceAnnotation) error {
	oid, err := objectID(photoID)
	if err != nil {
		return err
	}
	res, err := s.photos.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"people": ann},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("add annotation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ReassignAnnotation(ctx context.Context, photoID string, old models.FaceAnnotation, newPersonID string) error {
	oid, err := objectID(photoID)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id":    oid,
		"people": bson.M{"$elemMatch": bson.M{"person_id": old.PersonID, "box": old.Box}},
	}
	res, err := s.photos.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"people.$.person_id": newPersonID,
			"updated_at":         time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("reassign annotation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Persons ---

func (s *MongoStore) CreatePerson(ctx context.Context, name, faceFile string, photoCount int) (*models.Person, error) {
	now := time.Now().UTC()
	doc := personDoc{
		ID:         primitive.NewObjectID(),
		Name:       name,
		FaceFile:   faceFile,
		PhotoCount: photoCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.persons.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc personDoc
	if err := s.persons.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	p := doc.model()
	return &p, nil
}

func (s *MongoStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.decodePersons(ctx, opts)
}

func (s *MongoStore) ListPersonsPage(ctx context.Context, offset, limit int) ([]models.Person, int, error) {
	offset, limit = clampPage(offset, limit)

	total, err := s.persons.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count persons: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	persons, err := s.decodePersons(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return persons, int(total), nil
}

func (s *MongoStore) decodePersons(ctx context.Context, opts *options.FindOptions) ([]models.Person, error) {
	cur, err := s.persons.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find persons: %w", err)
	}
	defer cur.Close(ctx)

	persons := []models.Person{}
	for cur.Next(ctx) {
		var doc personDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode person: %w", err)
		}
		persons = append(persons, doc.model())
	}
	return persons, cur.Err()
}

func (s *MongoStore) AdjustPhotoCount(ctx context.Context, id string, delta int) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	// $inc cannot floor, so a decrement only applies while the result stays
	// non-negative; otherwise the counter is pinned to zero.
	filter := bson.M{"_id": oid}
	if delta < 0 {
		filter["photo_count"] = bson.M{"$gte": -delta}
	}
	res, err := s.persons.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"photo_count": delta},
		"$set": bson.M{"updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("adjust photo count: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if delta >= 0 {
		return ErrNotFound
	}

	res, err = s.persons.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"photo_count": 0, "updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("adjust photo count: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdatePerson(ctx context.Context, id string, upd models.PersonUpdate) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.FaceFile != nil {
		set["face_file"] = *upd.FaceFile
	}
	res, err := s.persons.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
