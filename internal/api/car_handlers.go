package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/motorlot/motorlot-server/internal/domain"
)

func (s *Server) registerCarRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listCars",
		Method:      http.MethodGet,
		Path:        "/api/v1/cars",
		Summary:     "List cars",
		Description: "Returns all car listings owned by the current user",
		Tags:        []string{"Cars"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListCars)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchCars",
		Method:      http.MethodGet,
		Path:        "/api/v1/cars/search",
		Summary:     "Search cars",
		Description: "Searches the current user's listings by keyword",
		Tags:        []string{"Cars"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearchCars)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCar",
		Method:      http.MethodGet,
		Path:        "/api/v1/cars/{id}",
		Summary:     "Get car",
		Description: "Returns a car listing by ID",
		Tags:        []string{"Cars"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCar)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteCar",
		Method:      http.MethodDelete,
		Path:        "/api/v1/cars/{id}",
		Summary:     "Delete car",
		Description: "Deletes a car listing owned by the current user",
		Tags:        []string{"Cars"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteCar)
}

// === DTOs ===

// CarResponse contains car listing data in API responses.
type CarResponse struct {
	ID          string    `json:"id" doc:"Car listing ID"`
	OwnerID     string    `json:"owner_id" doc:"Owning user ID"`
	Title       string    `json:"title" doc:"Listing title"`
	Description string    `json:"description" doc:"Listing description"`
	Tags        []string  `json:"tags" doc:"Listing tags"`
	Images      []string  `json:"images" doc:"Image reference paths, in upload order"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt   time.Time `json:"updated_at" doc:"Last update time"`
}

func toCarResponse(c *domain.Car) CarResponse {
	return CarResponse{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Description: c.Description,
		Tags:        c.Tags,
		Images:      c.Images,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toCarResponses(cars []*domain.Car) []CarResponse {
	resp := make([]CarResponse, len(cars))
	for i, c := range cars {
		resp[i] = toCarResponse(c)
	}
	return resp
}

// ListCarsInput contains parameters for listing cars.
type ListCarsInput struct {
	Authorization string `header:"Authorization"`
}

// CarsResponse contains a list of car listings.
type CarsResponse struct {
	Cars []CarResponse `json:"cars" doc:"Car listings"`
}

// CarsOutput wraps the car list response for Huma.
type CarsOutput struct {
	Body CarsResponse
}

// SearchCarsInput contains parameters for searching cars.
type SearchCarsInput struct {
	Authorization string `header:"Authorization"`
	Keyword       string `query:"keyword" doc:"Substring of title or description, or an exact tag"`
}

// GetCarInput contains parameters for getting a car.
type GetCarInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Car listing ID"`
}

// CarOutput wraps a single car response for Huma.
type CarOutput struct {
	Body CarResponse
}

// DeleteCarInput contains parameters for deleting a car.
type DeleteCarInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Car listing ID"`
}

// MessageResponse contains a simple status message.
type MessageResponse struct {
	Message string `json:"message" doc:"Status message"`
}

// MessageOutput wraps a message response for Huma.
type MessageOutput struct {
	Body MessageResponse
}

// === Handlers ===

func (s *Server) handleListCars(ctx context.Context, input *ListCarsInput) (*CarsOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	cars, err := s.cars.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &CarsOutput{Body: CarsResponse{Cars: toCarResponses(cars)}}, nil
}

func (s *Server) handleSearchCars(ctx context.Context, input *SearchCarsInput) (*CarsOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	cars, err := s.cars.Search(ctx, userID, input.Keyword)
	if err != nil {
		return nil, err
	}

	return &CarsOutput{Body: CarsResponse{Cars: toCarResponses(cars)}}, nil
}

func (s *Server) handleGetCar(ctx context.Context, input *GetCarInput) (*CarOutput, error) {
	if _, err := s.authenticateRequest(ctx, input.Authorization); err != nil {
		return nil, err
	}

	car, err := s.cars.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	return &CarOutput{Body: toCarResponse(car)}, nil
}

func (s *Server) handleDeleteCar(ctx context.Context, input *DeleteCarInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.cars.Delete(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Car deleted"}}, nil
}
