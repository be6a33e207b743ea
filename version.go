package canteen

// ServiceVersion is reported by each service's health endpoint.
const ServiceVersion = "1.0.0"
