// Package models contains GORM persistence models. Domain types stay free of ORM tags;
// each model converts with ToDomain / FromDomain.
package models
